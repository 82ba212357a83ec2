package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"manuscripts/api/internal/cache"
	"manuscripts/api/internal/config"
	"manuscripts/api/internal/gitrepo"
	"manuscripts/api/internal/manuscript"
	"manuscripts/api/internal/objectstore"
	"manuscripts/api/internal/search"
	"manuscripts/api/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	snapshots   map[string]store.SnapshotRecord
	comparisons []store.ComparisonRecord
	pingFn      func(context.Context) error
	insertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[string]store.SnapshotRecord)}
}

func (f *fakeStore) InsertSnapshot(_ context.Context, item store.SnapshotRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.snapshots[item.DocumentID+"/"+item.ID] = item
	return nil
}

func (f *fakeStore) GetSnapshot(_ context.Context, documentID, snapshotID string) (store.SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.snapshots[documentID+"/"+snapshotID]
	if !ok {
		return store.SnapshotRecord{}, errors.Wrapf(sql.ErrNoRows, "get snapshot %s", snapshotID)
	}
	return item, nil
}

func (f *fakeStore) ListSnapshots(_ context.Context, documentID string) ([]store.SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.SnapshotRecord, 0)
	for _, item := range f.snapshots {
		if item.DocumentID == documentID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) InsertComparison(_ context.Context, item store.ComparisonRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comparisons = append(f.comparisons, item)
	return nil
}

func (f *fakeStore) ListComparisons(_ context.Context, documentID string, limit int) ([]store.ComparisonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ComparisonRecord, 0)
	for _, item := range f.comparisons {
		if item.DocumentID == documentID && (limit <= 0 || len(items) < limit) {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) comparisonCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comparisons)
}

type fakeGit struct {
	mu      sync.Mutex
	commits map[string]manuscript.Snapshot
	loadErr error
	saveErr error
}

func newFakeGit() *fakeGit {
	return &fakeGit{commits: make(map[string]manuscript.Snapshot)}
}

func (f *fakeGit) SaveSnapshot(documentID string, snap manuscript.Snapshot, author string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return store.CommitInfo{}, f.saveErr
	}
	hash := fmt.Sprintf("%040d", len(f.commits)+1)
	f.commits[documentID+"@"+hash] = snap
	return store.CommitInfo{Hash: hash, Author: author, Message: "Snapshot " + snap.Name, CreatedAt: snap.CreatedAt}, nil
}

func (f *fakeGit) LoadSnapshot(documentID, revision string) (manuscript.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return manuscript.Snapshot{}, f.loadErr
	}
	snap, ok := f.commits[documentID+"@"+revision]
	if !ok {
		return manuscript.Snapshot{}, errors.Wrapf(gitrepo.ErrNotFound, "revision %s", revision)
	}
	return snap, nil
}

func (f *fakeGit) History(documentID string, limit int) ([]store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.CommitInfo, 0)
	for key, snap := range f.commits {
		docID, hash, _ := strings.Cut(key, "@")
		if docID != documentID {
			continue
		}
		items = append(items, store.CommitInfo{Hash: hash, Message: "Snapshot " + snap.Name, CreatedAt: snap.CreatedAt})
	}
	if len(items) == 0 {
		return nil, errors.Wrapf(gitrepo.ErrNotFound, "document %s", documentID)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Hash > items[j].Hash })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string]manuscript.Snapshot
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: make(map[string]manuscript.Snapshot)}
}

func (f *fakeArchive) PutSnapshot(_ context.Context, documentID string, snap manuscript.Snapshot) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := objectstore.ObjectKey(documentID, snap.ID)
	f.objects[key] = snap
	return key, nil
}

func (f *fakeArchive) GetSnapshot(_ context.Context, documentID, snapshotID string) (manuscript.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.objects[objectstore.ObjectKey(documentID, snapshotID)]
	if !ok {
		return manuscript.Snapshot{}, objectstore.ErrNotFound
	}
	return snap, nil
}

func (f *fakeArchive) Ping(context.Context) error { return nil }

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	pingErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeCache) Key(fingerprint, documentID, from, to string) string {
	return fingerprint + ":" + documentID + ":" + from + ":" + to
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return payload, nil
}

func (f *fakeCache) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = payload
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return f.pingErr }

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.SnapshotRecord
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{
		Results: []search.Result{{Type: search.ResultSnapshot, ID: "snap_a", DocumentID: "doc-1", Title: "Drift"}},
		Total:   1,
		Query:   q.Text,
	}
}

func (f *fakeSearch) IndexSnapshot(record search.SnapshotRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
}

type testDeps struct {
	store   *fakeStore
	git     *fakeGit
	search  *fakeSearch
	archive *fakeArchive
	cache   *fakeCache
}

func newTestService(opts ...Option) (*Service, *testDeps) {
	deps := &testDeps{
		store:  newFakeStore(),
		git:    newFakeGit(),
		search: &fakeSearch{},
	}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	svc := New(config.Config{CompareCacheTTL: time.Hour}, deps.store, deps.git, deps.search, nil, nil, opts...)
	return svc, deps
}

func newTestServiceWithInfra() (*Service, *testDeps) {
	archive := newFakeArchive()
	c := newFakeCache()
	svc, deps := newTestService(WithArchive(archive), WithCache(c))
	deps.archive = archive
	deps.cache = c
	return svc, deps
}

func manuscriptJSON(title, paragraph string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type":"manuscript",
		"attrs":{"id":"MPManuscript:1"},
		"content":[
			{"type":"title","attrs":{"id":"title-1"},"content":[{"type":"text","text":%q}]},
			{"type":"body","attrs":{"id":"body-1"},"content":[
				{"type":"section","attrs":{"id":"s1"},"content":[
					{"type":"section_title","attrs":{"id":"st1"},"content":[{"type":"text","text":"Introduction"}]},
					{"type":"paragraph","attrs":{"id":"p1"},"content":[{"type":"text","text":%q}]}
				]}
			]}
		]
	}`, title, paragraph))
}
