package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFallback implements Searcher with plain ILIKE queries against Postgres.
// It serves results when Meilisearch is unreachable.
type PgFallback struct {
	db *sql.DB
}

// NewPgFallback creates a Postgres-backed searcher.
func NewPgFallback(db *sql.DB) *PgFallback {
	return &PgFallback{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down anyway.
func (p *PgFallback) Healthy() bool {
	return true
}

// Search matches the query text against item title, description, and location.
func (p *PgFallback) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"(i.title ILIKE $1 OR i.description ILIKE $1 OR i.location ILIKE $1)"}
	args := []any{"%" + q.Text + "%"}
	argN := 2

	if q.Status != "" {
		where = append(where, fmt.Sprintf("i.status = $%d", argN))
		args = append(args, q.Status)
		argN++
	}
	if q.CategoryID != "" {
		where = append(where, fmt.Sprintf("i.category_id = $%d", argN))
		args = append(args, q.CategoryID)
		argN++
	}

	whereSQL := strings.Join(where, " AND ")
	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM items i WHERE " + whereSQL
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count items: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT i.id, i.slug, i.title, left(i.description, 160), i.status, i.location
		FROM items i
		WHERE %s
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT %d OFFSET %d`, whereSQL, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query items: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Slug, &r.Title, &r.Snippet, &r.Status, &r.Location); err != nil {
			return nil, 0, fmt.Errorf("search scan item: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every item for full reindexing into Meilisearch.
func (p *PgFallback) LoadAllRecords(ctx context.Context) ([]ItemRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, slug, title, description, status, location, coalesce(category_id, '')
		FROM items
	`)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	items := make([]ItemRecord, 0)
	for rows.Next() {
		var it ItemRecord
		if err := rows.Scan(&it.ID, &it.Slug, &it.Title, &it.Description, &it.Status, &it.Location, &it.CategoryID); err != nil {
			return nil, fmt.Errorf("scan item record: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
