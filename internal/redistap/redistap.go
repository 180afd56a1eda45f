// Package redistap intercepts go-redis commands through the client hook
// chain, producing and consuming redis dependency events. Applications
// attach it with client.AddHook(redistap.NewHook()).
package redistap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/hashing"
	"github.com/tapedeck/tapedeck/internal/session"
)

// PluginName identifies this interceptor in mock/live plugin lists.
const PluginName = "redis"

// errorTypeNil marks the redis.Nil sentinel so replay can restore it
// exactly: a cache miss must replay as a cache miss, not a generic error.
const errorTypeNil = "redis.Nil"

// Hook implements redis.Hook with record/replay behavior. Without an active
// session every command passes through untouched.
type Hook struct {
	logger *zap.Logger
}

// Option configures a Hook.
type Option func(*Hook)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hook) { h.logger = logger }
}

// NewHook builds the interceptor hook.
func NewHook(opts ...Option) *Hook {
	h := &Hook{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DialHook passes through; connection management is not recorded.
func (h *Hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// ProcessHook intercepts single commands.
func (h *Hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		s, ok := session.FromContext(ctx)
		if !ok {
			return next(ctx, cmd)
		}
		switch s.Mode() {
		case session.ModeRecording:
			return h.record(ctx, s.(*session.TraceSession), cmd, next)
		case session.ModeReplaying:
			return h.replay(ctx, s.(*session.ReplaySession), cmd, next)
		}
		return next(ctx, cmd)
	}
}

// ProcessPipelineHook records pipelines as individual command events in
// pipeline order.
func (h *Hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		s, ok := session.FromContext(ctx)
		if !ok {
			return next(ctx, cmds)
		}
		if ts, isTrace := s.(*session.TraceSession); isTrace {
			offset := ts.ElapsedMS()
			start := time.Now()
			err := next(ctx, cmds)
			duration := float64(time.Since(start)) / float64(time.Millisecond)
			perCmd := duration / float64(len(cmds))
			for _, cmd := range cmds {
				h.addEvent(ts, cmd, offset, perCmd)
			}
			return err
		}
		// Replay serves pipelined commands one by one from the cursor.
		rs := s.(*session.ReplaySession)
		if !rs.ShouldMockPlugin(PluginName) {
			return next(ctx, cmds)
		}
		for _, cmd := range cmds {
			if err := h.serveRecorded(rs, cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (h *Hook) record(ctx context.Context, ts *session.TraceSession, cmd redis.Cmder, next redis.ProcessHook) error {
	offset := ts.ElapsedMS()
	start := time.Now()
	err := next(ctx, cmd)
	duration := float64(time.Since(start)) / float64(time.Millisecond)

	h.addEvent(ts, cmd, offset, duration)
	return err
}

func (h *Hook) addEvent(ts *session.TraceSession, cmd redis.Cmder, offset, duration float64) {
	event := cassette.DependencyEvent{
		Type:          cassette.EventRedis,
		StartOffsetMS: offset,
		DurationMS:    duration,
		Signature:     signatureFor(cmd),
	}

	switch {
	case errors.Is(cmd.Err(), redis.Nil):
		event.Result = cassette.EventResult{
			Error:     redis.Nil.Error(),
			ErrorType: errorTypeNil,
		}
	case cmd.Err() != nil:
		event.Result = cassette.EventResult{
			Error:     cmd.Err().Error(),
			ErrorType: fmt.Sprintf("%T", cmd.Err()),
		}
	default:
		event.Result = cassette.EventResult{
			Status: cassette.Int(0),
			Body: &cassette.BodySnapshot{
				Captured: true,
				Encoding: "json",
				Data:     commandValue(cmd),
			},
		}
	}

	if _, err := ts.AddEvent(event); err != nil {
		h.logger.Warn("dropping redis event", zap.Error(err))
	}
}

func (h *Hook) replay(ctx context.Context, rs *session.ReplaySession, cmd redis.Cmder, next redis.ProcessHook) error {
	if !rs.ShouldMockPlugin(PluginName) {
		return next(ctx, cmd)
	}
	return h.serveRecorded(rs, cmd)
}

func (h *Hook) serveRecorded(rs *session.ReplaySession, cmd redis.Cmder) error {
	sig := signatureFor(cmd)
	result, err := rs.GetNextEvent(cassette.EventRedis, map[string]any{
		"lib":       sig.Lib,
		"method":    sig.Method,
		"body_hash": sig.BodyHash,
	})
	if err != nil {
		cmd.SetErr(err)
		return err
	}
	if result == nil {
		err := fmt.Errorf("redistap: no recorded event for %s", sig.Method)
		cmd.SetErr(err)
		return err
	}

	if result.Error != "" {
		if result.ErrorType == errorTypeNil {
			cmd.SetErr(redis.Nil)
			return redis.Nil
		}
		err := errors.New(result.Error)
		cmd.SetErr(err)
		return err
	}

	var value any
	if result.Body != nil {
		value = result.Body.Data
	}
	if err := applyValue(cmd, value); err != nil {
		cmd.SetErr(err)
		return err
	}
	return nil
}

func signatureFor(cmd redis.Cmder) cassette.EventSignature {
	return cassette.EventSignature{
		Lib:      PluginName,
		Method:   strings.ToUpper(cmd.Name()),
		BodyHash: hashing.HashBody(argStrings(cmd.Args())),
	}
}

func argStrings(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprint(a)
	}
	return out
}

func commandValue(cmd redis.Cmder) any {
	switch c := cmd.(type) {
	case *redis.StringCmd:
		return c.Val()
	case *redis.IntCmd:
		return c.Val()
	case *redis.StatusCmd:
		return c.Val()
	case *redis.BoolCmd:
		return c.Val()
	case *redis.FloatCmd:
		return c.Val()
	case *redis.StringSliceCmd:
		return c.Val()
	case *redis.Cmd:
		return c.Val()
	}
	return nil
}

// applyValue pushes a recorded value back into the concrete command type.
// Cassette round-trips decode numbers as float64, so integer-valued
// commands convert.
func applyValue(cmd redis.Cmder, value any) error {
	switch c := cmd.(type) {
	case *redis.StringCmd:
		s, ok := value.(string)
		if !ok {
			return typeMismatch(cmd, value)
		}
		c.SetVal(s)
	case *redis.IntCmd:
		n, ok := asInt64(value)
		if !ok {
			return typeMismatch(cmd, value)
		}
		c.SetVal(n)
	case *redis.StatusCmd:
		s, ok := value.(string)
		if !ok {
			return typeMismatch(cmd, value)
		}
		c.SetVal(s)
	case *redis.BoolCmd:
		b, ok := value.(bool)
		if !ok {
			return typeMismatch(cmd, value)
		}
		c.SetVal(b)
	case *redis.FloatCmd:
		f, ok := asFloat64(value)
		if !ok {
			return typeMismatch(cmd, value)
		}
		c.SetVal(f)
	case *redis.StringSliceCmd:
		c.SetVal(asStringSlice(value))
	case *redis.Cmd:
		c.SetVal(value)
	default:
		return fmt.Errorf("redistap: unsupported command type %T for replay", cmd)
	}
	return nil
}

func typeMismatch(cmd redis.Cmder, value any) error {
	return fmt.Errorf("redistap: recorded value %T does not fit %s reply", value, strings.ToUpper(cmd.Name()))
}

func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, _ := item.(string)
			out[i] = s
		}
		return out
	}
	return nil
}
