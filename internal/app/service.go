package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"manuscripts/api/internal/cache"
	"manuscripts/api/internal/compare"
	"manuscripts/api/internal/config"
	"manuscripts/api/internal/logging"
	"manuscripts/api/internal/manuscript"
	"manuscripts/api/internal/search"
	"manuscripts/api/internal/store"
	"manuscripts/api/internal/util"
)

const excerptLength = 500

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

type dataStore interface {
	InsertSnapshot(context.Context, store.SnapshotRecord) error
	GetSnapshot(context.Context, string, string) (store.SnapshotRecord, error)
	ListSnapshots(context.Context, string) ([]store.SnapshotRecord, error)
	InsertComparison(context.Context, store.ComparisonRecord) error
	ListComparisons(context.Context, string, int) ([]store.ComparisonRecord, error)
	Ping(ctx context.Context) error
}

type gitService interface {
	SaveSnapshot(string, manuscript.Snapshot, string) (store.CommitInfo, error)
	LoadSnapshot(string, string) (manuscript.Snapshot, error)
	History(string, int) ([]store.CommitInfo, error)
}

type snapshotArchive interface {
	PutSnapshot(context.Context, string, manuscript.Snapshot) (string, error)
	GetSnapshot(context.Context, string, string) (manuscript.Snapshot, error)
	Ping(context.Context) error
}

type resultCache interface {
	Key(fingerprint, documentID, fromSnapshotID, toSnapshotID string) string
	Get(context.Context, string) ([]byte, error)
	Put(context.Context, string, []byte, time.Duration) error
	Ping(context.Context) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexSnapshot(search.SnapshotRecord)
}

// SaveSnapshotInput is the request to store a new snapshot of a document.
type SaveSnapshotInput struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	Snapshot json.RawMessage `json:"snapshot"`
	Author   string          `json:"author"`
}

// SnapshotDetail is a stored snapshot with its tree.
type SnapshotDetail struct {
	Record   store.SnapshotRecord `json:"record"`
	Snapshot manuscript.Snapshot  `json:"snapshot"`
}

// ComparisonResult is the merged tree of two snapshots with its change counts.
type ComparisonResult struct {
	DocumentID string           `json:"documentId,omitempty"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	Summary    compare.Summary  `json:"summary"`
	Document   *manuscript.Node `json:"document"`
	DurationMS int64            `json:"durationMs"`
	Cached     bool             `json:"cached"`
}

type Option func(*Service)

// WithArchive enables the object store copy of every saved snapshot.
func WithArchive(archive snapshotArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithCache enables caching of stored-snapshot comparisons.
func WithCache(c resultCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	cfg     config.Config
	store   dataStore
	git     gitService
	search  searchService
	engine  *compare.Engine
	archive snapshotArchive
	cache   resultCache
	logger  *zap.Logger
	now     func() time.Time
}

// New wires the service. Pass archive and cache through options only when they are
// configured; a typed nil would be treated as enabled.
func New(cfg config.Config, dataStore dataStore, gitService gitService, searchService searchService, engine *compare.Engine, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = compare.New(compare.WithLogger(logger))
	}
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		git:    gitService,
		search: searchService,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SaveSnapshot(ctx context.Context, documentID string, input SaveSnapshotInput) (store.SnapshotRecord, error) {
	documentID = strings.TrimSpace(documentID)
	if err := validateIdentifier("documentId", documentID); err != nil {
		return store.SnapshotRecord{}, err
	}
	snapshotID := strings.TrimSpace(input.ID)
	if snapshotID == "" {
		snapshotID = util.NewID("snap")
	}
	if err := validateIdentifier("snapshot id", snapshotID); err != nil {
		return store.SnapshotRecord{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.SnapshotRecord{}, validationError("name is required")
	}
	author := firstNonBlank(input.Author, "Manuscripts")

	doc, err := manuscript.Load(input.Snapshot)
	if err != nil {
		return store.SnapshotRecord{}, err
	}

	if _, err := s.store.GetSnapshot(ctx, documentID, snapshotID); err == nil {
		return store.SnapshotRecord{}, domainError(http.StatusConflict, CodeSnapshotExists, "A snapshot with this id already exists", map[string]any{"snapshotId": snapshotID})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.SnapshotRecord{}, err
	}

	snap := manuscript.Snapshot{
		ID:        snapshotID,
		Name:      name,
		CreatedAt: s.now().UTC(),
		Snapshot:  input.Snapshot,
	}
	commit, err := s.git.SaveSnapshot(documentID, snap, author)
	if err != nil {
		return store.SnapshotRecord{}, errors.Wrap(err, "commit snapshot")
	}

	archiveKey := ""
	if s.archive != nil {
		archiveKey, err = s.archive.PutSnapshot(ctx, documentID, snap)
		if err != nil {
			return store.SnapshotRecord{}, errors.Wrap(err, "archive snapshot")
		}
	}

	record := store.SnapshotRecord{
		ID:         snapshotID,
		DocumentID: documentID,
		Name:       name,
		Title:      documentTitle(doc),
		Excerpt:    excerpt(doc, excerptLength),
		CommitHash: commit.Hash,
		ArchiveKey: archiveKey,
		SizeBytes:  len(input.Snapshot),
		CreatedBy:  author,
		CreatedAt:  snap.CreatedAt,
	}
	if err := s.store.InsertSnapshot(ctx, record); err != nil {
		return store.SnapshotRecord{}, err
	}
	if s.search != nil {
		s.search.IndexSnapshot(search.SnapshotRecord{
			ID:         record.ID,
			DocumentID: record.DocumentID,
			Name:       record.Name,
			Title:      record.Title,
			Excerpt:    record.Excerpt,
			CreatedAt:  record.CreatedAt.UnixMilli(),
		})
	}

	s.logger.Info("snapshot saved",
		zap.String(logging.FieldDocumentID, documentID),
		zap.String(logging.FieldSnapshotID, snapshotID),
		zap.String("commit", commit.Hash),
		zap.Int("size_bytes", record.SizeBytes),
	)
	return record, nil
}

func (s *Service) ListSnapshots(ctx context.Context, documentID string) ([]store.SnapshotRecord, error) {
	if err := validateIdentifier("documentId", documentID); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, documentID)
}

func (s *Service) GetSnapshot(ctx context.Context, documentID, snapshotID string) (SnapshotDetail, error) {
	if err := validateIdentifier("documentId", documentID); err != nil {
		return SnapshotDetail{}, err
	}
	if err := validateIdentifier("snapshot id", snapshotID); err != nil {
		return SnapshotDetail{}, err
	}
	record, err := s.store.GetSnapshot(ctx, documentID, snapshotID)
	if err != nil {
		return SnapshotDetail{}, err
	}
	snap, err := s.loadSnapshot(ctx, record)
	if err != nil {
		return SnapshotDetail{}, err
	}
	return SnapshotDetail{Record: record, Snapshot: snap}, nil
}

// Compare merges two stored snapshots of a document. Results are cached by
// (document, from, to) when a cache is configured, and every computed comparison
// is recorded in the audit log.
func (s *Service) Compare(ctx context.Context, documentID, fromID, toID, requestedBy string) (*ComparisonResult, error) {
	for _, id := range []struct{ field, value string }{
		{"documentId", documentID}, {"from", fromID}, {"to", toID},
	} {
		if err := validateIdentifier(id.field, id.value); err != nil {
			return nil, err
		}
	}
	logger := s.logger.With(
		zap.String(logging.FieldDocumentID, documentID),
		zap.String(logging.FieldFromSnapshot, fromID),
		zap.String(logging.FieldToSnapshot, toID),
	)

	cacheKey := ""
	if s.cache != nil {
		cacheKey = s.cache.Key(s.engine.Fingerprint(), documentID, fromID, toID)
		if result, ok := s.cachedComparison(ctx, cacheKey, logger); ok {
			return result, nil
		}
	}

	var from, to manuscript.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.loadStored(gctx, documentID, fromID)
		from = snap
		return err
	})
	g.Go(func() error {
		snap, err := s.loadStored(gctx, documentID, toID)
		to = snap
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := s.compareSnapshots(from, to)
	if err != nil {
		return nil, err
	}
	result.DocumentID = documentID

	if err := s.store.InsertComparison(ctx, store.ComparisonRecord{
		ID:             util.NewID("cmp"),
		DocumentID:     documentID,
		FromSnapshotID: fromID,
		ToSnapshotID:   toID,
		Inserted:       result.Summary.Inserted,
		Deleted:        result.Summary.Deleted,
		Updated:        result.Summary.Updated,
		DurationMS:     result.DurationMS,
		RequestedBy:    firstNonBlank(requestedBy, "anonymous"),
		CreatedAt:      s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	if s.cache != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return nil, errors.Wrap(err, "encode comparison")
		}
		if err := s.cache.Put(ctx, cacheKey, payload, s.cfg.CompareCacheTTL); err != nil {
			logger.Warn("cache comparison failed", zap.Error(err))
		}
	}

	logger.Info("snapshots compared",
		zap.Bool(logging.FieldCacheHit, false),
		zap.Int64(logging.FieldDurationMS, result.DurationMS),
		zap.Int("changes", result.Summary.Total()),
	)
	return result, nil
}

// CompareInline merges two snapshots supplied by the caller without touching storage.
func (s *Service) CompareInline(_ context.Context, original, comparison manuscript.Snapshot) (*ComparisonResult, error) {
	return s.compareSnapshots(original, comparison)
}

func (s *Service) ListComparisons(ctx context.Context, documentID string, limit int) ([]store.ComparisonRecord, error) {
	if err := validateIdentifier("documentId", documentID); err != nil {
		return nil, err
	}
	return s.store.ListComparisons(ctx, documentID, limit)
}

// History lists the snapshot commits of a document, newest first.
func (s *Service) History(_ context.Context, documentID string, limit int) ([]store.CommitInfo, error) {
	if err := validateIdentifier("documentId", documentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.git.History(documentID, limit)
}

func (s *Service) Search(ctx context.Context, query search.Query) search.Response {
	if s.search == nil || strings.TrimSpace(query.Text) == "" {
		return search.Response{Results: []search.Result{}, Query: query.Text}
	}
	return s.search.Search(ctx, query)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Checks reports the health of every configured dependency by name.
func (s *Service) Checks(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.cache != nil {
		checks["cache"] = s.cache.Ping(ctx)
	}
	if s.archive != nil {
		checks["archive"] = s.archive.Ping(ctx)
	}
	return checks
}

func (s *Service) compareSnapshots(from, to manuscript.Snapshot) (*ComparisonResult, error) {
	started := s.now()
	merged, err := s.engine.CompareDocuments(from, to)
	if err != nil {
		return nil, err
	}
	return &ComparisonResult{
		From:       from.ID,
		To:         to.ID,
		Summary:    compare.Summarize(merged),
		Document:   merged,
		DurationMS: s.now().Sub(started).Milliseconds(),
	}, nil
}

func (s *Service) cachedComparison(ctx context.Context, key string, logger *zap.Logger) (*ComparisonResult, bool) {
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !isCacheMiss(err) {
			logger.Warn("cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var result ComparisonResult
	if err := json.Unmarshal(payload, &result); err != nil {
		logger.Warn("discarding undecodable cache entry", zap.Error(err))
		return nil, false
	}
	result.Cached = true
	logger.Debug("comparison served from cache", zap.Bool(logging.FieldCacheHit, true))
	return &result, true
}

func (s *Service) loadStored(ctx context.Context, documentID, snapshotID string) (manuscript.Snapshot, error) {
	record, err := s.store.GetSnapshot(ctx, documentID, snapshotID)
	if err != nil {
		return manuscript.Snapshot{}, err
	}
	return s.loadSnapshot(ctx, record)
}

// loadSnapshot reads the tree from git and falls back to the archive.
func (s *Service) loadSnapshot(ctx context.Context, record store.SnapshotRecord) (manuscript.Snapshot, error) {
	snap, err := s.git.LoadSnapshot(record.DocumentID, record.CommitHash)
	if err == nil {
		return snap, nil
	}
	if s.archive == nil || record.ArchiveKey == "" {
		return manuscript.Snapshot{}, errors.Wrapf(err, "load snapshot %s", record.ID)
	}
	s.logger.Warn("git lookup failed, reading archive",
		zap.String(logging.FieldDocumentID, record.DocumentID),
		zap.String(logging.FieldSnapshotID, record.ID),
		zap.Error(err),
	)
	archived, archiveErr := s.archive.GetSnapshot(ctx, record.DocumentID, record.ID)
	if archiveErr != nil {
		return manuscript.Snapshot{}, errors.Wrapf(errors.CombineErrors(err, archiveErr), "load snapshot %s", record.ID)
	}
	return archived, nil
}

func isCacheMiss(err error) bool {
	return errors.Is(err, cache.ErrMiss)
}

func documentTitle(doc *manuscript.Node) string {
	for _, child := range doc.Content {
		if child.Type == manuscript.TypeTitle {
			return strings.TrimSpace(child.TextContent())
		}
	}
	return ""
}

// excerpt joins the text of every text block, truncated to limit runes.
func excerpt(doc *manuscript.Node, limit int) string {
	var b strings.Builder
	doc.Walk(func(n *manuscript.Node) bool {
		if !n.Type.IsTextBlock() {
			return true
		}
		text := strings.TrimSpace(n.TextContent())
		if text != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
		return false
	})
	out := b.String()
	if utf8.RuneCountInString(out) <= limit {
		return out
	}
	return string([]rune(out)[:limit])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
