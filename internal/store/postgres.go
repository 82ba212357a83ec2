package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping db")
	}
	return nil
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, item SnapshotRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, document_id, name, title, excerpt, commit_hash, archive_key, size_bytes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.DocumentID, item.Name, item.Title, item.Excerpt, item.CommitHash, item.ArchiveKey, item.SizeBytes, item.CreatedBy, item.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert snapshot")
	}
	return nil
}

// GetSnapshot returns sql.ErrNoRows, wrapped, when the document holds no such
// snapshot.
func (s *PostgresStore) GetSnapshot(ctx context.Context, documentID, snapshotID string) (SnapshotRecord, error) {
	var item SnapshotRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, name, title, excerpt, commit_hash, archive_key, size_bytes, created_by, created_at
		FROM snapshots
		WHERE document_id=$1 AND id=$2
	`, documentID, snapshotID).Scan(
		&item.ID, &item.DocumentID, &item.Name, &item.Title, &item.Excerpt,
		&item.CommitHash, &item.ArchiveKey, &item.SizeBytes, &item.CreatedBy, &item.CreatedAt,
	)
	if err != nil {
		return SnapshotRecord{}, errors.Wrapf(err, "get snapshot %s", snapshotID)
	}
	return item, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, documentID string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, name, title, excerpt, commit_hash, archive_key, size_bytes, created_by, created_at
		FROM snapshots
		WHERE document_id=$1
		ORDER BY created_at DESC
	`, documentID)
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	defer rows.Close()

	items := make([]SnapshotRecord, 0)
	for rows.Next() {
		var item SnapshotRecord
		if err := rows.Scan(
			&item.ID, &item.DocumentID, &item.Name, &item.Title, &item.Excerpt,
			&item.CommitHash, &item.ArchiveKey, &item.SizeBytes, &item.CreatedBy, &item.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan snapshot")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate snapshots")
	}
	return items, nil
}

func (s *PostgresStore) InsertComparison(ctx context.Context, item ComparisonRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comparisons (id, document_id, from_snapshot_id, to_snapshot_id, inserted, deleted, updated, duration_ms, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.DocumentID, item.FromSnapshotID, item.ToSnapshotID, item.Inserted, item.Deleted, item.Updated, item.DurationMS, item.RequestedBy, item.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert comparison")
	}
	return nil
}

func (s *PostgresStore) ListComparisons(ctx context.Context, documentID string, limit int) ([]ComparisonRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, from_snapshot_id, to_snapshot_id, inserted, deleted, updated, duration_ms, requested_by, created_at
		FROM comparisons
		WHERE document_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list comparisons")
	}
	defer rows.Close()

	items := make([]ComparisonRecord, 0)
	for rows.Next() {
		var item ComparisonRecord
		if err := rows.Scan(
			&item.ID, &item.DocumentID, &item.FromSnapshotID, &item.ToSnapshotID,
			&item.Inserted, &item.Deleted, &item.Updated, &item.DurationMS, &item.RequestedBy, &item.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan comparison")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate comparisons")
	}
	return items, nil
}
