// Package pgtap intercepts Postgres queries issued through pgx. The
// application talks to a Tap instead of the pool directly; the Tap forwards
// to the live pool in record mode and serves recorded row sets in replay
// mode.
package pgtap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/hashing"
	"github.com/tapedeck/tapedeck/internal/session"
)

// PluginName identifies this interceptor in mock/live plugin lists.
const PluginName = "db"

const lib = "pgx"

// DB is the slice of pgxpool.Pool the tap needs; *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Tap wraps a pgx pool with record/replay behavior.
type Tap struct {
	db     DB
	logger *zap.Logger
}

// Option configures a Tap.
type Option func(*Tap)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tap) { t.logger = logger }
}

// New wraps a database handle.
func New(db DB, opts ...Option) *Tap {
	t := &Tap{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Query runs a query and returns rows as column-name maps. Row maps, not
// pgx.Rows, are the replayable unit: a recorded result must round-trip
// through cassette JSON.
func (t *Tap) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	s, ok := session.FromContext(ctx)
	if !ok {
		return t.liveQuery(ctx, sql, args...)
	}

	switch s.Mode() {
	case session.ModeRecording:
		return t.recordQuery(ctx, s.(*session.TraceSession), sql, args...)
	case session.ModeReplaying:
		rs := s.(*session.ReplaySession)
		if !rs.ShouldMockPlugin(PluginName) {
			return t.liveQuery(ctx, sql, args...)
		}
		return t.replayQuery(rs, sql, args)
	}
	return t.liveQuery(ctx, sql, args...)
}

// Exec runs a statement and returns the affected row count.
func (t *Tap) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	s, ok := session.FromContext(ctx)
	if !ok {
		return t.liveExec(ctx, sql, args...)
	}

	switch s.Mode() {
	case session.ModeRecording:
		return t.recordExec(ctx, s.(*session.TraceSession), sql, args...)
	case session.ModeReplaying:
		rs := s.(*session.ReplaySession)
		if !rs.ShouldMockPlugin(PluginName) {
			return t.liveExec(ctx, sql, args...)
		}
		return t.replayExec(rs, sql, args)
	}
	return t.liveExec(ctx, sql, args...)
}

func (t *Tap) liveQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func (t *Tap) liveExec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *Tap) recordQuery(ctx context.Context, ts *session.TraceSession, sql string, args ...any) ([]map[string]any, error) {
	offset := ts.ElapsedMS()
	start := time.Now()
	rows, err := t.liveQuery(ctx, sql, args...)
	duration := float64(time.Since(start)) / float64(time.Millisecond)

	event := cassette.DependencyEvent{
		Type:          cassette.EventDBQuery,
		StartOffsetMS: offset,
		DurationMS:    duration,
		Signature:     Signature(sql, args),
	}
	if err != nil {
		event.Result = cassette.EventResult{
			Error:     err.Error(),
			ErrorType: fmt.Sprintf("%T", err),
		}
		t.addEvent(ts, event)
		return nil, err
	}

	event.Result = cassette.EventResult{
		Status: cassette.Int(len(rows)),
		Body: &cassette.BodySnapshot{
			Captured: true,
			Encoding: "json",
			Data:     rowsToAny(rows),
		},
	}
	t.addEvent(ts, event)
	return rows, nil
}

func (t *Tap) recordExec(ctx context.Context, ts *session.TraceSession, sql string, args ...any) (int64, error) {
	offset := ts.ElapsedMS()
	start := time.Now()
	affected, err := t.liveExec(ctx, sql, args...)
	duration := float64(time.Since(start)) / float64(time.Millisecond)

	event := cassette.DependencyEvent{
		Type:          cassette.EventDBQuery,
		StartOffsetMS: offset,
		DurationMS:    duration,
		Signature:     Signature(sql, args),
	}
	if err != nil {
		event.Result = cassette.EventResult{
			Error:     err.Error(),
			ErrorType: fmt.Sprintf("%T", err),
		}
		t.addEvent(ts, event)
		return 0, err
	}

	event.Result = cassette.EventResult{Status: cassette.Int(int(affected))}
	t.addEvent(ts, event)
	return affected, nil
}

func (t *Tap) addEvent(ts *session.TraceSession, event cassette.DependencyEvent) {
	if _, err := ts.AddEvent(event); err != nil {
		t.logger.Warn("dropping db event", zap.Error(err))
	}
}

func (t *Tap) replayQuery(rs *session.ReplaySession, sql string, args []any) ([]map[string]any, error) {
	result, err := t.nextEvent(rs, sql, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("pgtap: no recorded event for query %q", firstKeyword(sql))
	}
	if result.Error != "" {
		return nil, errors.New(result.Error)
	}
	if result.Body == nil || result.Body.Data == nil {
		return nil, nil
	}
	return DecodeRows(result.Body.Data)
}

func (t *Tap) replayExec(rs *session.ReplaySession, sql string, args []any) (int64, error) {
	result, err := t.nextEvent(rs, sql, args)
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, fmt.Errorf("pgtap: no recorded event for statement %q", firstKeyword(sql))
	}
	if result.Error != "" {
		return 0, errors.New(result.Error)
	}
	if result.Status == nil {
		return 0, nil
	}
	return int64(*result.Status), nil
}

func (t *Tap) nextEvent(rs *session.ReplaySession, sql string, args []any) (*cassette.EventResult, error) {
	sig := Signature(sql, args)
	return rs.GetNextEvent(cassette.EventDBQuery, map[string]any{
		"lib":       sig.Lib,
		"method":    sig.Method,
		"body_hash": sig.BodyHash,
	})
}

// Signature fingerprints a statement: the method is the first SQL keyword,
// the body hash covers the exact text and rendered arguments.
func Signature(sql string, args []any) cassette.EventSignature {
	rendered := make([]string, len(args))
	for i, a := range args {
		rendered[i] = fmt.Sprint(a)
	}
	return cassette.EventSignature{
		Lib:    lib,
		Method: firstKeyword(sql),
		BodyHash: hashing.HashBody(map[string]any{
			"sql":  strings.TrimSpace(sql),
			"args": rendered,
		}),
	}
}

func firstKeyword(sql string) string {
	fields := strings.Fields(strings.TrimSpace(sql))
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("pgtap: read row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func rowsToAny(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

// DecodeRows converts cassette-decoded row data back to column maps.
func DecodeRows(data any) ([]map[string]any, error) {
	switch rows := data.(type) {
	case []map[string]any:
		return rows, nil
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for i, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("pgtap: recorded row %d is not an object", i)
			}
			out = append(out, row)
		}
		return out, nil
	}
	return nil, fmt.Errorf("pgtap: recorded rows have unexpected type %T", data)
}
