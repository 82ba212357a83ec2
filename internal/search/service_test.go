package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	mu       sync.Mutex
	healthy  bool
	results  []Result
	total    int
	err      error
	indexErr error
	indexed  []SnapshotRecord
	queries  []Query
}

func (f *fakeBackend) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.results, f.total, f.err
}

func (f *fakeBackend) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeBackend) setHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

func (f *fakeBackend) indexedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.indexed))
	for _, record := range f.indexed {
		ids = append(ids, record.ID)
	}
	return ids
}

func (f *fakeBackend) IndexSnapshot(record SnapshotRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
	return f.indexErr
}

func (f *fakeBackend) IndexSnapshots(records []SnapshotRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return f.indexErr
}

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeBackend{healthy: true, results: []Result{{ID: "snap_a", Type: ResultSnapshot}}, total: 1}
	fallback := &fakeBackend{healthy: true, results: []Result{{ID: "snap_pg"}}, total: 1}
	svc := NewService(primary, fallback, zap.NewNop())

	resp := svc.Search(context.Background(), Query{Text: "drift"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "snap_a", resp.Results[0].ID)
	assert.Equal(t, "drift", resp.Query)
	assert.Empty(t, fallback.queries)
}

func TestSearchFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		primary *fakeBackend
	}{
		{name: "unhealthy primary", primary: &fakeBackend{healthy: false}},
		{name: "failing primary", primary: &fakeBackend{healthy: true, err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeBackend{healthy: true, results: []Result{{ID: "snap_pg"}}, total: 1}
			svc := NewService(tt.primary, fallback, nil)

			resp := svc.Search(context.Background(), Query{Text: "drift", DocumentID: "doc-1"})
			require.Len(t, resp.Results, 1)
			assert.Equal(t, "snap_pg", resp.Results[0].ID)
			require.Len(t, fallback.queries, 1)
			assert.Equal(t, "doc-1", fallback.queries[0].DocumentID)
		})
	}
}

func TestSearchWithoutPrimary(t *testing.T) {
	fallback := &fakeBackend{healthy: true}
	svc := NewService(nil, fallback, nil)

	resp := svc.Search(context.Background(), Query{Text: "nothing"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestSearchFallbackErrorReturnsEmpty(t *testing.T) {
	svc := NewService(nil, &fakeBackend{err: errors.New("db down")}, nil)

	resp := svc.Search(context.Background(), Query{Text: "drift"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestIndexSnapshot(t *testing.T) {
	primary := &fakeBackend{healthy: true}
	svc := NewService(primary, nil, nil)

	svc.IndexSnapshot(SnapshotRecord{ID: "snap_a", DocumentID: "doc-1", Title: "Drift"})
	svc.IndexSnapshot(SnapshotRecord{ID: "snap_b", DocumentID: "doc-1", Title: "Drift"})
	svc.Wait()

	assert.Len(t, primary.indexed, 2)
}

func TestIndexSnapshotSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeBackend{healthy: false}
	svc := NewService(primary, nil, nil)

	svc.IndexSnapshot(SnapshotRecord{ID: "snap_a"})
	svc.Wait()

	assert.Empty(t, primary.indexed)
}

func TestReindexAll(t *testing.T) {
	primary := &fakeBackend{healthy: true}
	svc := NewService(primary, nil, nil)

	require.NoError(t, svc.ReindexAll(nil))
	assert.Empty(t, primary.indexed)

	require.NoError(t, svc.ReindexAll([]SnapshotRecord{{ID: "snap_a"}, {ID: "snap_b"}}))
	assert.Len(t, primary.indexed, 2)

	primary.indexErr = errors.New("index gone")
	assert.Error(t, svc.ReindexAll([]SnapshotRecord{{ID: "snap_c"}}))
}

type fakeSource struct {
	mu       sync.Mutex
	records  []SnapshotRecord
	failures int
	calls    int
}

func (f *fakeSource) LoadAllRecords(context.Context) ([]SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("database unavailable")
	}
	return append([]SnapshotRecord(nil), f.records...), nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func runKeepIndexed(t *testing.T, svc *Service, source RecordSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.KeepIndexed(ctx, 5*time.Millisecond, source)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestKeepIndexedReindexesWhenPrimaryRecovers(t *testing.T) {
	primary := &fakeBackend{healthy: false}
	svc := NewService(primary, nil, nil)
	source := &fakeSource{records: []SnapshotRecord{{ID: "snap_a"}, {ID: "snap_b"}}}
	runKeepIndexed(t, svc, source)

	// Saved during the outage and dropped by the primary.
	svc.IndexSnapshot(SnapshotRecord{ID: "snap_b"})
	svc.Wait()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, primary.indexedIDs())
	assert.Zero(t, source.callCount())

	primary.setHealthy(true)
	require.Eventually(t, func() bool {
		return len(primary.indexedIDs()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"snap_a", "snap_b"}, primary.indexedIDs())

	// Stays synced while healthy.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, source.callCount())

	primary.setHealthy(false)
	time.Sleep(20 * time.Millisecond)
	primary.setHealthy(true)
	require.Eventually(t, func() bool {
		return len(primary.indexedIDs()) == 4
	}, time.Second, 5*time.Millisecond)
}

func TestKeepIndexedRetriesFailedLoad(t *testing.T) {
	primary := &fakeBackend{healthy: true}
	svc := NewService(primary, nil, nil)
	source := &fakeSource{records: []SnapshotRecord{{ID: "snap_a"}}, failures: 2}
	runKeepIndexed(t, svc, source)

	require.Eventually(t, func() bool {
		return len(primary.indexedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, source.callCount())
}

func TestKeepIndexedWithoutPrimaryReturns(t *testing.T) {
	svc := NewService(nil, nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.KeepIndexed(context.Background(), time.Millisecond, &fakeSource{})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("KeepIndexed did not return without a primary")
	}
}
