// Package httptap intercepts outbound HTTP calls as an http.RoundTripper
// wrapper. Explicit wrapping replaces client monkey-patching: applications
// opt in by constructing their client with NewTransport, and every call is
// visible in the type system.
package httptap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/hashing"
	"github.com/tapedeck/tapedeck/internal/match"
	"github.com/tapedeck/tapedeck/internal/redact"
	"github.com/tapedeck/tapedeck/internal/session"
)

// PluginName identifies this interceptor in mock/live plugin lists.
const PluginName = "http"

// Transport wraps a base RoundTripper with record/replay behavior. Outside
// an active session it is a transparent passthrough.
type Transport struct {
	base      http.RoundTripper
	logger    *zap.Logger
	maxBodyKB int
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithMaxBodyKB caps stored dependency response bodies.
func WithMaxBodyKB(kb int) Option {
	return func(t *Transport) { t.maxBodyKB = kb }
}

// NewTransport wraps base (nil means http.DefaultTransport).
func NewTransport(base http.RoundTripper, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{
		base:      base,
		logger:    zap.NewNop(),
		maxBodyKB: 64,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	s, ok := session.FromContext(req.Context())
	if !ok {
		return t.base.RoundTrip(req)
	}

	switch s.Mode() {
	case session.ModeRecording:
		return t.record(s.(*session.TraceSession), req)
	case session.ModeReplaying:
		return t.replay(s.(*session.ReplaySession), req)
	}
	return t.base.RoundTrip(req)
}

func (t *Transport) record(ts *session.TraceSession, req *http.Request) (*http.Response, error) {
	sig, bodyHash, err := buildSignature(req)
	if err != nil {
		return nil, err
	}

	offset := ts.ElapsedMS()
	start := time.Now()
	resp, callErr := t.base.RoundTrip(req)
	duration := float64(time.Since(start)) / float64(time.Millisecond)

	event := cassette.DependencyEvent{
		Type:          cassette.EventHTTPClient,
		StartOffsetMS: offset,
		DurationMS:    duration,
		Signature:     sig,
	}
	event.Signature.BodyHash = bodyHash

	if callErr != nil {
		// The failure is data once captured; the caller still sees the
		// original error afterwards.
		event.Result = cassette.EventResult{
			Error:     callErr.Error(),
			ErrorType: fmt.Sprintf("%T", callErr),
		}
		if _, err := ts.AddEvent(event); err != nil {
			t.logger.Warn("dropping http event", zap.Error(err))
		}
		return nil, callErr
	}

	respBody, err := drainBody(&resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httptap: read response body: %w", err)
	}

	event.Result = cassette.EventResult{
		Status:  cassette.Int(resp.StatusCode),
		Headers: redact.HeadersAllowlist(flattenHeader(resp.Header), nil),
		Body: cassette.NewBodySnapshot(
			respBody, resp.Header.Get("Content-Type"), true, t.maxBodyKB),
	}

	eid, err := ts.AddEvent(event)
	if err != nil {
		t.logger.Warn("dropping http event", zap.Error(err))
		return resp, nil
	}
	t.logger.Debug("recorded http event",
		zap.Int("eid", eid),
		zap.String("url", sig.URL),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

func (t *Transport) replay(rs *session.ReplaySession, req *http.Request) (*http.Response, error) {
	if !rs.ShouldMockPlugin(PluginName) {
		return t.base.RoundTrip(req)
	}

	sig, bodyHash, err := buildSignature(req)
	if err != nil {
		return nil, err
	}
	actual := map[string]any{
		"lib":    PluginName,
		"method": sig.Method,
		"url":    sig.URL,
	}
	if bodyHash != "" {
		actual["body_hash"] = bodyHash
	}

	result, err := rs.GetNextEvent(cassette.EventHTTPClient, actual)
	if err != nil {
		return nil, err
	}
	if result == nil {
		// Lenient mode ran out of recorded events; fall through live.
		t.logger.Warn("no recorded event for http call, passing through",
			zap.String("url", sig.URL))
		return t.base.RoundTrip(req)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("httptap: replayed error: %s", result.Error)
	}
	return synthesizeResponse(req, result)
}

func buildSignature(req *http.Request) (cassette.EventSignature, string, error) {
	sig := cassette.EventSignature{
		Lib:         PluginName,
		Method:      req.Method,
		URL:         match.NormalizeURL(req.URL.String()),
		Query:       match.NormalizeQuery(req.URL.RawQuery),
		HeadersHash: hashing.HashHeaders(flattenHeader(req.Header), redact.AllowedHeaders),
	}

	if req.Body == nil || req.Body == http.NoBody {
		return sig, "", nil
	}
	body, err := drainBody(&req.Body)
	if err != nil {
		return sig, "", fmt.Errorf("httptap: read request body: %w", err)
	}
	if len(body) == 0 {
		return sig, "", nil
	}
	return sig, hashing.HashBody(body), nil
}

// drainBody reads and replaces a body so the original consumer still sees
// the full stream.
func drainBody(body *io.ReadCloser) ([]byte, error) {
	if *body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(*body)
	closeErr := (*body).Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	*body = io.NopCloser(bytes.NewReader(data))
	return data, nil
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

func synthesizeResponse(req *http.Request, result *cassette.EventResult) (*http.Response, error) {
	status := http.StatusOK
	if result.Status != nil {
		status = *result.Status
	}

	header := make(http.Header, len(result.Headers))
	for key, value := range result.Headers {
		header.Set(key, value)
	}

	body, err := decodeBody(result.Body)
	if err != nil {
		return nil, err
	}

	return &http.Response{
		StatusCode:    status,
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

func decodeBody(snapshot *cassette.BodySnapshot) ([]byte, error) {
	if snapshot == nil || !snapshot.Captured || snapshot.Data == nil {
		return nil, nil
	}
	switch snapshot.Encoding {
	case "json":
		data, err := json.Marshal(snapshot.Data)
		if err != nil {
			return nil, fmt.Errorf("httptap: encode replayed body: %w", err)
		}
		return data, nil
	case "text":
		s, _ := snapshot.Data.(string)
		return []byte(s), nil
	case "bytes":
		s, _ := snapshot.Data.(string)
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("httptap: decode replayed body: %w", err)
		}
		return data, nil
	}
	return nil, nil
}
