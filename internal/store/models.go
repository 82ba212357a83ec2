package store

import "time"

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

// SnapshotRecord is the metadata row of a saved snapshot. The tree itself lives in
// the document's git repository at CommitHash, and optionally in the archive under
// ArchiveKey.
type SnapshotRecord struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Excerpt    string    `json:"excerpt,omitempty"`
	CommitHash string    `json:"commitHash"`
	ArchiveKey string    `json:"archiveKey,omitempty"`
	SizeBytes  int       `json:"sizeBytes"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ComparisonRecord is the audit row written for every comparison of two stored
// snapshots.
type ComparisonRecord struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"documentId"`
	FromSnapshotID string    `json:"fromSnapshotId"`
	ToSnapshotID   string    `json:"toSnapshotId"`
	Inserted       int       `json:"inserted"`
	Deleted        int       `json:"deleted"`
	Updated        int       `json:"updated"`
	DurationMS     int64     `json:"durationMs"`
	RequestedBy    string    `json:"requestedBy"`
	CreatedAt      time.Time `json:"createdAt"`
}
