package pgtap

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/session"
)

// fakeRows satisfies pgx.Rows over a fixed result set.
type fakeRows struct {
	cols   []string
	rows   [][]any
	cursor int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}
func (r *fakeRows) Next() bool {
	r.cursor++
	return r.cursor <= len(r.rows)
}
func (r *fakeRows) Scan(dest ...any) error { return errors.New("not implemented") }
func (r *fakeRows) Values() ([]any, error) { return r.rows[r.cursor-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeDB struct {
	t        *testing.T
	rows     *fakeRows
	tag      pgconn.CommandTag
	err      error
	queries  int
	execs    int
	failFast bool
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db.failFast {
		db.t.Fatal("live query during replay")
	}
	db.queries++
	if db.err != nil {
		return nil, db.err
	}
	return db.rows, nil
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.failFast {
		db.t.Fatal("live exec during replay")
	}
	db.execs++
	if db.err != nil {
		return pgconn.CommandTag{}, db.err
	}
	return db.tag, nil
}

func recordingCtx() (context.Context, *session.TraceSession) {
	ts := session.NewTraceSession(session.Options{Service: "checkout", Env: "test"})
	return session.WithSession(context.Background(), ts), ts
}

func TestSignature(t *testing.T) {
	sig := Signature("  select id, total FROM orders WHERE id = $1", []any{77})
	assert.Equal(t, "pgx", sig.Lib)
	assert.Equal(t, "SELECT", sig.Method)
	assert.NotEmpty(t, sig.BodyHash)

	same := Signature("  select id, total FROM orders WHERE id = $1", []any{77})
	assert.Equal(t, sig.BodyHash, same.BodyHash)

	other := Signature("  select id, total FROM orders WHERE id = $1", []any{78})
	assert.NotEqual(t, sig.BodyHash, other.BodyHash, "argument change must change the hash")

	assert.Equal(t, "UPDATE", Signature("UPDATE orders SET total = $1", nil).Method)
	assert.Equal(t, "UNKNOWN", Signature("   ", nil).Method)
}

func TestQuery_NoSessionPassesThrough(t *testing.T) {
	db := &fakeDB{t: t, rows: &fakeRows{cols: []string{"id"}, rows: [][]any{{int64(1)}}}}
	tap := New(db)

	rows, err := tap.Query(context.Background(), "SELECT id FROM orders")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(1)}}, rows)
	assert.Equal(t, 1, db.queries)
}

func TestRecord_QueryCapturesRows(t *testing.T) {
	ctx, ts := recordingCtx()
	db := &fakeDB{t: t, rows: &fakeRows{
		cols: []string{"id", "total"},
		rows: [][]any{{int64(1), 9.5}, {int64(2), 20.0}},
	}}
	tap := New(db)

	rows, err := tap.Query(ctx, "SELECT id, total FROM orders WHERE user_id = $1", 42)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	event := c.Events[0]
	assert.Equal(t, cassette.EventDBQuery, event.Type)
	assert.Equal(t, "SELECT", event.Signature.Method)
	require.NotNil(t, event.Result.Status)
	assert.Equal(t, 2, *event.Result.Status)
	require.NotNil(t, event.Result.Body)
	data, ok := event.Result.Body.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestRecord_ExecCapturesAffectedCount(t *testing.T) {
	ctx, ts := recordingCtx()
	db := &fakeDB{t: t, tag: pgconn.NewCommandTag("UPDATE 3")}
	tap := New(db)

	affected, err := tap.Exec(ctx, "UPDATE orders SET status = $1", "paid")
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	require.NotNil(t, c.Events[0].Result.Status)
	assert.Equal(t, 3, *c.Events[0].Result.Status)
	assert.Nil(t, c.Events[0].Result.Body)
}

func TestRecord_ErrorCapturedAndReturned(t *testing.T) {
	ctx, ts := recordingCtx()
	db := &fakeDB{t: t, err: errors.New("deadlock detected")}
	tap := New(db)

	_, err := tap.Query(ctx, "SELECT 1")
	require.Error(t, err)

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	assert.Equal(t, "deadlock detected", c.Events[0].Result.Error)
	assert.Nil(t, c.Events[0].Result.Status)
}

func replayCtxWith(t *testing.T, strict bool, events ...cassette.DependencyEvent) (context.Context, *session.ReplaySession) {
	t.Helper()
	ts := session.NewTraceSession(session.Options{Service: "checkout", Env: "test"})
	for _, e := range events {
		_, err := ts.AddEvent(e)
		require.NoError(t, err)
	}
	ts.Finalize()
	rs := session.NewReplaySession(ts.ToCassette(), session.ReplayOptions{Strict: strict})
	return session.WithSession(context.Background(), rs), rs
}

func TestReplay_QueryServesRecordedRows(t *testing.T) {
	sql := "SELECT id FROM orders WHERE user_id = $1"
	ctx, rs := replayCtxWith(t, true, cassette.DependencyEvent{
		Type:      cassette.EventDBQuery,
		Signature: Signature(sql, []any{42}),
		Result: cassette.EventResult{
			Status: cassette.Int(1),
			Body: &cassette.BodySnapshot{
				Captured: true,
				Encoding: "json",
				// Decoded JSON shape: []any of maps, numbers as float64.
				Data: []any{map[string]any{"id": float64(7)}},
			},
		},
	})

	tap := New(&fakeDB{t: t, failFast: true})
	rows, err := tap.Query(ctx, sql, 42)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": float64(7)}}, rows)
	assert.Equal(t, 1, rs.CurrentCursor())
}

func TestReplay_ExecServesAffectedCount(t *testing.T) {
	sql := "DELETE FROM carts WHERE id = $1"
	ctx, _ := replayCtxWith(t, true, cassette.DependencyEvent{
		Type:      cassette.EventDBQuery,
		Signature: Signature(sql, []any{9}),
		Result:    cassette.EventResult{Status: cassette.Int(4)},
	})

	tap := New(&fakeDB{t: t, failFast: true})
	affected, err := tap.Exec(ctx, sql, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
}

func TestReplay_RecordedErrorIsReplayed(t *testing.T) {
	sql := "SELECT 1"
	ctx, _ := replayCtxWith(t, true, cassette.DependencyEvent{
		Type:      cassette.EventDBQuery,
		Signature: Signature(sql, nil),
		Result:    cassette.EventResult{Error: "deadlock detected", ErrorType: "*pgconn.PgError"},
	})

	tap := New(&fakeDB{t: t, failFast: true})
	_, err := tap.Query(ctx, sql)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
}

func TestReplay_StrictMismatchDoesNotAdvance(t *testing.T) {
	ctx, rs := replayCtxWith(t, true, cassette.DependencyEvent{
		Type:      cassette.EventDBQuery,
		Signature: Signature("SELECT id FROM orders", nil),
		Result:    cassette.EventResult{Status: cassette.Int(0)},
	})

	tap := New(&fakeDB{t: t, failFast: true})
	_, err := tap.Query(ctx, "SELECT id FROM users")
	require.Error(t, err)
	assert.True(t, session.IsMismatch(err))
	assert.Equal(t, 0, rs.CurrentCursor())
}

func TestReplay_LivePluginPassesThrough(t *testing.T) {
	ts := session.NewTraceSession(session.Options{Service: "checkout", Env: "test"})
	ts.Finalize()
	rs := session.NewReplaySession(ts.ToCassette(), session.ReplayOptions{
		Strict:      true,
		LivePlugins: []string{PluginName},
	})
	ctx := session.WithSession(context.Background(), rs)

	db := &fakeDB{t: t, rows: &fakeRows{cols: []string{"n"}, rows: [][]any{{int64(1)}}}}
	tap := New(db)
	rows, err := tap.Query(ctx, "SELECT 1 AS n")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, db.queries)
	assert.Equal(t, 0, rs.CurrentCursor())
}

func TestDecodeRows(t *testing.T) {
	rows, err := DecodeRows([]any{map[string]any{"a": float64(1)}})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"a": float64(1)}}, rows)

	_, err = DecodeRows([]any{"not-an-object"})
	require.Error(t, err)

	_, err = DecodeRows("garbage")
	require.Error(t, err)
}
