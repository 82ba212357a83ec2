package search

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"manuscripts/api/internal/logging"
)

// Service is the facade that tries the primary index first and falls back to PG FTS.
type Service struct {
	primary  Backend
	fallback Searcher
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. primary must be a nil interface, not a typed
// nil, when Meilisearch is not configured.
func NewService(primary Backend, fallback Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{primary: primary, fallback: fallback, logger: logger.With(zap.String(logging.FieldComponent, "search"))}
}

// Search tries the primary index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("primary index failed, falling back to postgres", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSnapshot indexes a snapshot (fire-and-forget).
func (s *Service) IndexSnapshot(record SnapshotRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.IndexSnapshot(record); err != nil {
			s.logger.Warn("index snapshot failed",
				zap.String(logging.FieldSnapshotID, record.ID),
				zap.String(logging.FieldDocumentID, record.DocumentID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every in-flight IndexSnapshot call has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAll pushes records to the primary index in one batch.
func (s *Service) ReindexAll(records []SnapshotRecord) error {
	if s.primary == nil || !s.primary.Healthy() || len(records) == 0 {
		return nil
	}
	if err := s.primary.IndexSnapshots(records); err != nil {
		s.logger.Warn("reindex snapshots failed", zap.Int("count", len(records)), zap.Error(err))
		return errors.Wrap(err, "reindex snapshots")
	}
	s.logger.Info("reindexed snapshots", zap.Int("count", len(records)))
	return nil
}

// RecordSource lists every stored snapshot for a full reindex. PgFTS is one.
type RecordSource interface {
	LoadAllRecords(ctx context.Context) ([]SnapshotRecord, error)
}

// ReindexFrom reindexes every record of source into the primary index.
func (s *Service) ReindexFrom(ctx context.Context, source RecordSource) error {
	if s.primary == nil || !s.primary.Healthy() || source == nil {
		return nil
	}
	records, err := source.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return errors.Wrap(err, "load snapshot records")
	}
	return s.ReindexAll(records)
}

// KeepIndexed polls the primary every interval and reindexes it from source each
// time it turns healthy, including at start. Snapshots saved while the primary was
// down are dropped by IndexSnapshot, so this is what brings them back. A failed
// reindex is retried on the next tick. It returns when ctx is done.
func (s *Service) KeepIndexed(ctx context.Context, interval time.Duration, source RecordSource) {
	if s.primary == nil || source == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	synced := false
	for {
		if !s.primary.Healthy() {
			synced = false
		} else if !synced {
			synced = s.ReindexFrom(ctx, source) == nil
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
