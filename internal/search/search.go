package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const ResultSnapshot ResultType = "snapshot"

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Name       string     `json:"name"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
}

// Query describes a search request.
type Query struct {
	Text       string
	DocumentID string // empty = all documents
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push snapshots into a search index.
type Indexer interface {
	IndexSnapshot(record SnapshotRecord) error
	IndexSnapshots(records []SnapshotRecord) error
}

// Backend is a search index that can be both queried and written.
type Backend interface {
	Searcher
	Indexer
}

// SnapshotRecord is the data we index for a saved snapshot.
type SnapshotRecord struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt"`
	CreatedAt  int64  `json:"createdAt"`
}
