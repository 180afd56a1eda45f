package httptap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/hashing"
	"github.com/tapedeck/tapedeck/internal/session"
)

func newRecordingSession() *session.TraceSession {
	return session.NewTraceSession(session.Options{
		Service: "checkout", Env: "test", Framework: "net/http",
	})
}

func TestRoundTrip_NoSessionPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransport(nil)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRecord_CapturesEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"token":"secret-value"}`)
	}))
	defer server.Close()

	ts := newRecordingSession()
	ctx := session.WithSession(context.Background(), ts)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/data?b=2&a=1", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	// The caller still sees the unredacted wire bytes.
	assert.Contains(t, string(body), "secret-value")

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	event := c.Events[0]
	assert.Equal(t, cassette.EventHTTPClient, event.Type)
	assert.Equal(t, 1, event.EID)
	assert.Equal(t, "GET", event.Signature.Method)
	assert.Equal(t, server.URL+"/data", event.Signature.URL, "query must be stripped")
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, event.Signature.Query)
	require.NotNil(t, event.Result.Status)
	assert.Equal(t, 200, *event.Result.Status)

	require.NotNil(t, event.Result.Body)
	assert.True(t, event.Result.Body.Captured)
	data := event.Result.Body.Data.(map[string]any)
	assert.Equal(t, true, data["ok"])
	// Stored copy is redacted even though the live response was not.
	assert.Equal(t, "[REDACTED]", data["token"])
}

func TestBuildSignature_HeadersHashUsesAllowlist(t *testing.T) {
	base, err := http.NewRequest(http.MethodGet, "https://api.example.com/data", nil)
	require.NoError(t, err)
	base.Header.Set("Accept", "application/json")
	base.Header.Set("Content-Type", "application/json")

	sig, _, err := buildSignature(base)
	require.NoError(t, err)
	assert.NotEqual(t, hashing.NoneHash, sig.HeadersHash,
		"allow-listed headers must produce a real fingerprint")

	// A header outside the allow list must not perturb the hash.
	noisy := base.Clone(context.Background())
	noisy.Header.Set("X-Trace-Span", "abc123")
	noisySig, _, err := buildSignature(noisy)
	require.NoError(t, err)
	assert.Equal(t, sig.HeadersHash, noisySig.HeadersHash)

	// Changing an allow-listed header must.
	other := base.Clone(context.Background())
	other.Header.Set("Accept", "text/html")
	otherSig, _, err := buildSignature(other)
	require.NoError(t, err)
	assert.NotEqual(t, sig.HeadersHash, otherSig.HeadersHash)
}

func TestRecord_EventCarriesHeadersHash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ts := newRecordingSession()
	ctx := session.WithSession(context.Background(), ts)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	assert.NotEqual(t, hashing.NoneHash, c.Events[0].Signature.HeadersHash)
}

func TestRecord_RequestBodyRestored(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = string(b)
	}))
	defer server.Close()

	ts := newRecordingSession()
	ctx := session.WithSession(context.Background(), ts)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL,
		strings.NewReader(`{"amount":5}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, `{"amount":5}`, received)

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	assert.NotEmpty(t, c.Events[0].Signature.BodyHash)
}

func TestRecord_TransportErrorIsCapturedAndReturned(t *testing.T) {
	ts := newRecordingSession()
	ctx := session.WithSession(context.Background(), ts)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://127.0.0.1:1/unreachable", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	c := ts.ToCassette()
	require.Len(t, c.Events, 1)
	assert.NotEmpty(t, c.Events[0].Result.Error)
	assert.NotEmpty(t, c.Events[0].Result.ErrorType)
	assert.Nil(t, c.Events[0].Result.Status)
}

func replaySessionFor(t *testing.T, url string, strict bool) *session.ReplaySession {
	t.Helper()
	ts := newRecordingSession()
	_, err := ts.AddEvent(cassette.DependencyEvent{
		Type:          cassette.EventHTTPClient,
		StartOffsetMS: 5,
		DurationMS:    10,
		Signature: cassette.EventSignature{
			Lib:    PluginName,
			Method: "GET",
			URL:    url,
		},
		Result: cassette.EventResult{
			Status:  cassette.Int(200),
			Headers: map[string]string{"Content-Type": "application/json"},
			Body: &cassette.BodySnapshot{
				Captured: true,
				Encoding: "json",
				Data:     map[string]any{"ok": true},
			},
		},
	})
	require.NoError(t, err)
	ts.Finalize()
	return session.NewReplaySession(ts.ToCassette(), session.ReplayOptions{Strict: strict})
}

func TestReplay_SynthesizesRecordedResponse(t *testing.T) {
	rs := replaySessionFor(t, "https://api.example.com/data", true)
	ctx := session.WithSession(context.Background(), rs)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.example.com/data?fresh=1", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, 1, rs.CurrentCursor())
}

func TestReplay_StrictMismatchSurfaces(t *testing.T) {
	rs := replaySessionFor(t, "https://api.example.com/data", true)
	ctx := session.WithSession(context.Background(), rs)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.example.com/other", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay mismatch")
}

func TestReplay_LivePluginPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	ts := newRecordingSession()
	ts.Finalize()
	rs := session.NewReplaySession(ts.ToCassette(), session.ReplayOptions{
		Strict:      true,
		LivePlugins: []string{PluginName},
	})
	ctx := session.WithSession(context.Background(), rs)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, 0, rs.CurrentCursor())
}

func TestReplay_LenientPastEndFallsThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ts := newRecordingSession()
	ts.Finalize()
	rs := session.NewReplaySession(ts.ToCassette(), session.ReplayOptions{Strict: false})
	ctx := session.WithSession(context.Background(), rs)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestReplay_RecordedErrorIsReplayed(t *testing.T) {
	ts := newRecordingSession()
	_, err := ts.AddEvent(cassette.DependencyEvent{
		Type:      cassette.EventHTTPClient,
		Signature: cassette.EventSignature{Lib: PluginName, Method: "GET", URL: "https://a/x"},
		Result:    cassette.EventResult{Error: "connection refused", ErrorType: "*net.OpError"},
	})
	require.NoError(t, err)
	ts.Finalize()
	rs := session.NewReplaySession(ts.ToCassette(), session.ReplayOptions{Strict: true})
	ctx := session.WithSession(context.Background(), rs)

	client := &http.Client{Transport: NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://a/x", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
