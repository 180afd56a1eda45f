package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// IndexResult summarizes one Index run.
type IndexResult struct {
	Indexed int
	Skipped int
	// Problems holds one message per file that could not be indexed.
	Problems []string
}

// Index walks dir for cassette files and upserts one row per cassette.
// Unreadable or schema-invalid files are skipped and reported, never fatal:
// one corrupt cassette must not block indexing the rest.
func (c *Catalog) Index(ctx context.Context, dir string) (*IndexResult, error) {
	result := &IndexResult{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isCassetteFile(path) {
			return nil
		}

		loaded, err := cassette.Read(path)
		if err != nil {
			result.Skipped++
			result.Problems = append(result.Problems, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if problems := cassette.Validate(loaded); len(problems) > 0 {
			result.Skipped++
			result.Problems = append(result.Problems,
				fmt.Sprintf("%s: schema: %s", path, problems[0]))
			return nil
		}

		if err := c.upsert(ctx, path, loaded); err != nil {
			return err
		}
		result.Indexed++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: index %s: %w", dir, err)
	}
	return result, nil
}

func isCassetteFile(path string) bool {
	return strings.HasSuffix(path, cassette.ExtJSON) || strings.HasSuffix(path, cassette.ExtGzip)
}

func (c *Catalog) upsert(ctx context.Context, path string, loaded *cassette.Cassette) error {
	endpoint := loaded.Request.RouteTemplate
	if endpoint == "" {
		endpoint = loaded.Request.Path
	}
	hasError := 0
	if loaded.ErrorInfo != nil {
		hasError = 1
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cassettes
			(path, session_id, recorded_at, service, env, method, endpoint,
			 status, duration_ms, total_events, has_error, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			session_id   = excluded.session_id,
			recorded_at  = excluded.recorded_at,
			service      = excluded.service,
			env          = excluded.env,
			method       = excluded.method,
			endpoint     = excluded.endpoint,
			status       = excluded.status,
			duration_ms  = excluded.duration_ms,
			total_events = excluded.total_events,
			has_error    = excluded.has_error,
			indexed_at   = excluded.indexed_at`,
		path,
		loaded.Session.ID,
		loaded.Session.RecordedAt,
		loaded.Session.Service,
		loaded.Session.Env,
		loaded.Request.Method,
		endpoint,
		loaded.Response.Status,
		loaded.Response.DurationMS,
		loaded.Stats.TotalEvents,
		hasError,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}
