package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// PgFTS implements Searcher using PostgreSQL full-text search over snapshots.fts.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. Without Postgres the service does not start.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks snapshots with plainto_tsquery and ts_rank and builds snippets with
// ts_headline over the excerpt.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	where := "s.fts @@ " + tsQuery
	if q.DocumentID != "" {
		where += " AND s.document_id = $2"
		args = append(args, q.DocumentID)
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM snapshots s WHERE %s", where)
	dataSQL := fmt.Sprintf(`
		SELECT s.id, s.title, s.name,
			ts_headline('english', coalesce(s.excerpt, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			s.document_id
		FROM snapshots s
		WHERE %s
		ORDER BY ts_rank(s.fts, %s) DESC, s.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "pgfts count")
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "pgfts query")
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r := Result{Type: ResultSnapshot}
		if err := rows.Scan(&r.ID, &r.Title, &r.Name, &r.Snippet, &r.DocumentID); err != nil {
			return nil, 0, errors.Wrap(err, "pgfts scan")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "pgfts iterate")
	}
	return results, total, nil
}

// LoadAllRecords returns every snapshot for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, document_id, name, title, excerpt, created_at
		FROM snapshots
	`)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshots")
	}
	defer rows.Close()

	records := make([]SnapshotRecord, 0)
	for rows.Next() {
		var r SnapshotRecord
		var createdAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Name, &r.Title, &r.Excerpt, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan snapshot")
		}
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time.UnixMilli()
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate snapshots")
	}
	return records, nil
}
