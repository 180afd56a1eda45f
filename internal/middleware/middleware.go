// Package middleware adapts the recorder to net/http servers. One Recorder
// wraps the application handler; each qualifying request runs inside a
// record or replay session carried on the request context, and record
// sessions end with a cassette on disk.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/config"
	"github.com/tapedeck/tapedeck/internal/redact"
	"github.com/tapedeck/tapedeck/internal/session"
)

// Recorder is the HTTP entry point of the engine.
type Recorder struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *Metrics

	// Loaded once in replay mode; every request replays against a fresh
	// cursor over the same cassette.
	replayCassette *cassette.Cassette
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics attaches a metrics set registered elsewhere.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// New builds a Recorder. In replay mode the cassette is loaded eagerly so a
// bad path fails at startup rather than on the first request.
func New(cfg *config.Config, opts ...Option) (*Recorder, error) {
	r := &Recorder{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}

	if cfg.IsReplayMode() {
		c, err := cassette.Read(cfg.CassettePath)
		if err != nil {
			return nil, fmt.Errorf("load replay cassette: %w", err)
		}
		r.replayCassette = c
	}
	return r, nil
}

// Handler wraps next with record/replay behavior.
func (rec *Recorder) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rec.cfg.IsEnabled() || !rec.cfg.ShouldTrace(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		switch {
		case rec.cfg.IsRecordMode():
			if !rec.cfg.ShouldSample() {
				next.ServeHTTP(w, r)
				return
			}
			rec.record(w, r, next)
		case rec.cfg.IsReplayMode():
			rec.replay(w, r, next)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (rec *Recorder) record(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ts := session.NewTraceSession(session.Options{
		Service:   rec.cfg.Service,
		Env:       rec.cfg.Env,
		Framework: "net/http",
		GitSHA:    rec.cfg.GitSHA,
		Policies:  rec.policies(),
	})
	rec.metrics.RequestsTraced.WithLabelValues("record").Inc()

	// The raw request body is read up front and restored; the snapshot is
	// built after the response because on_error capture depends on the
	// outcome.
	reqBody, err := drainBody(r)
	if err != nil {
		rec.logger.Warn("reading request body failed, skipping trace",
			zap.String("session_id", ts.ShortID()), zap.Error(err))
		next.ServeHTTP(w, r)
		return
	}

	ww := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()

	defer func() {
		duration := float64(time.Since(start)) / float64(time.Millisecond)
		panicked := recover()
		if panicked != nil {
			ts.MarkError("panic", fmt.Sprint(panicked), string(debug.Stack()))
			if !ww.wroteHeader {
				ww.status = http.StatusInternalServerError
			}
		}

		rec.finish(ts, r, ww, reqBody, duration)
		rec.metrics.RequestDuration.Observe(time.Since(start).Seconds())

		if panicked != nil {
			panic(panicked)
		}
	}()

	next.ServeHTTP(ww, r.WithContext(session.WithSession(r.Context(), ts)))
}

// finish assembles the snapshots and persists the cassette.
func (rec *Recorder) finish(ts *session.TraceSession, r *http.Request, ww *responseRecorder, reqBody []byte, duration float64) {
	isError := ts.HasError() || ww.status >= 500

	if rec.cfg.ErrorsOnly && !isError {
		ts.Finalize()
		return
	}

	if err := ts.SetRequest(rec.requestSnapshot(r, reqBody, isError)); err != nil {
		rec.logger.Warn("request snapshot rejected", zap.Error(err))
	}

	storeResp := redact.ShouldStoreBody(rec.cfg.ResponseCapturePolicy(), isError)
	respSnapshot := cassette.ResponseSnapshot{
		Status:     ww.status,
		DurationMS: duration,
		Headers:    rec.redactHeaders(flattenHeader(ww.Header())),
		Body: cassette.NewBodySnapshot(
			ww.body, ww.Header().Get("Content-Type"), storeResp, rec.cfg.MaxBodyKB),
	}
	if err := ts.SetResponse(respSnapshot); err != nil {
		rec.logger.Warn("response snapshot rejected", zap.Error(err))
	}

	ts.Finalize()

	compression := cassette.CompressionNone
	if rec.cfg.Compress {
		compression = cassette.CompressionGzip
	}
	path, err := cassette.Write(ts.ToCassette(), rec.cfg.CassetteDir, compression)
	if err != nil {
		rec.metrics.WriteFailures.Inc()
		rec.logger.Error("cassette write failed",
			zap.String("session_id", ts.ShortID()), zap.Error(err))
		return
	}
	rec.metrics.CassettesWritten.Inc()
	rec.logger.Info("cassette written",
		zap.String("session_id", ts.ShortID()),
		zap.String("path", path),
		zap.Int("status", ww.status),
		zap.Float64("duration_ms", duration),
	)
}

func (rec *Recorder) replay(w http.ResponseWriter, r *http.Request, next http.Handler) {
	rs := session.NewReplaySession(rec.replayCassette, session.ReplayOptions{
		Path:          rec.cfg.CassettePath,
		Strict:        rec.cfg.StrictReplay,
		CheckBodyHash: rec.cfg.CheckBodyHash,
		MockPlugins:   rec.cfg.MockPlugins,
		LivePlugins:   rec.cfg.LivePlugins,
	})
	rec.metrics.RequestsTraced.WithLabelValues("replay").Inc()

	next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), rs)))

	if unconsumed := rs.GetUnconsumedEvents(); len(unconsumed) > 0 {
		rec.metrics.UnconsumedEvents.Add(float64(len(unconsumed)))
		rec.logger.Warn("recorded events left unconsumed",
			zap.Int("count", len(unconsumed)),
			zap.String("cassette", rec.cfg.CassettePath),
		)
	}
}

func (rec *Recorder) requestSnapshot(r *http.Request, body []byte, isError bool) cassette.RequestSnapshot {
	storeReq := redact.ShouldStoreBody(rec.cfg.RequestCapturePolicy(), isError)
	return cassette.RequestSnapshot{
		Method:        r.Method,
		Path:          r.URL.Path,
		RouteTemplate: routeTemplate(r),
		Headers:       rec.redactHeaders(flattenHeader(r.Header)),
		Query:         flattenQuery(r),
		Body: cassette.NewBodySnapshot(
			body, r.Header.Get("Content-Type"), storeReq, rec.cfg.MaxBodyKB),
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func (rec *Recorder) redactHeaders(headers map[string]string) map[string]string {
	return redact.Headers(headers, rec.cfg.HeaderMode(), rec.cfg.SensitiveHeaders)
}

func (rec *Recorder) policies() cassette.AppliedPolicies {
	return cassette.AppliedPolicies{
		RedactionMode:     rec.cfg.RedactHeaderMode,
		RedactionRules:    rec.cfg.SensitiveKeys,
		MaxBodyKB:         rec.cfg.MaxBodyKB,
		StoreRequestBody:  rec.cfg.StoreRequestBody,
		StoreResponseBody: rec.cfg.StoreResponseBody,
		SampleRate:        rec.cfg.SampleRate,
		ErrorsOnly:        rec.cfg.ErrorsOnly,
	}
}

// routeTemplate recovers the matched route pattern when the app router is
// chi; otherwise the concrete path stands in.
func routeTemplate(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func drainBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := readAndRestore(&r.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func flattenQuery(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			out[key] = vs[0]
		}
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
