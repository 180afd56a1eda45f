package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Entry is one indexed cassette row.
type Entry struct {
	Path        string
	SessionID   string
	RecordedAt  string
	Service     string
	Env         string
	Method      string
	Endpoint    string
	Status      int
	DurationMS  float64
	TotalEvents int
	HasError    bool
}

// Query filters a Search. Zero values mean "no constraint".
type Query struct {
	Method     string
	Endpoint   string
	StatusMin  int
	StatusMax  int
	ErrorsOnly bool
	Service    string
	Env        string
	Limit      int
}

const defaultLimit = 100

// Search returns indexed cassettes matching the query, most recent first.
// Endpoint matches by substring; the rest match exactly.
func (c *Catalog) Search(ctx context.Context, q Query) ([]Entry, error) {
	var conditions []string
	var args []any

	if q.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, strings.ToUpper(q.Method))
	}
	if q.Endpoint != "" {
		conditions = append(conditions, "endpoint LIKE ?")
		args = append(args, "%"+q.Endpoint+"%")
	}
	if q.StatusMin > 0 {
		conditions = append(conditions, "status >= ?")
		args = append(args, q.StatusMin)
	}
	if q.StatusMax > 0 {
		conditions = append(conditions, "status <= ?")
		args = append(args, q.StatusMax)
	}
	if q.ErrorsOnly {
		conditions = append(conditions, "(has_error = 1 OR status >= 500)")
	}
	if q.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, q.Service)
	}
	if q.Env != "" {
		conditions = append(conditions, "env = ?")
		args = append(args, q.Env)
	}

	query := `SELECT path, session_id, recorded_at, service, env, method,
		endpoint, status, duration_ms, total_events, has_error
		FROM cassettes`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY recorded_at DESC LIMIT ?"

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// List returns the most recently recorded cassettes.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	return c.Search(ctx, Query{Limit: limit})
}

// Count returns the number of indexed cassettes.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cassettes").Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var hasError int
		if err := rows.Scan(
			&e.Path, &e.SessionID, &e.RecordedAt, &e.Service, &e.Env,
			&e.Method, &e.Endpoint, &e.Status, &e.DurationMS,
			&e.TotalEvents, &hasError,
		); err != nil {
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}
		e.HasError = hasError == 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate rows: %w", err)
	}
	return entries, nil
}
