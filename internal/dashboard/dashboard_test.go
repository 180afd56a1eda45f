package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedeck/tapedeck/internal/catalog"
	"github.com/tapedeck/tapedeck/internal/testutil"
)

func newServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/orders"})
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "POST", Path: "/orders", Status: 502, HasError: true})

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	_, err = cat.Index(context.Background(), dir)
	require.NoError(t, err)
	return New(dir, cat), dir
}

func getJSON(t *testing.T, handler http.Handler, url string) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestHealthz(t *testing.T) {
	s, _ := newServer(t)
	code, body := getJSON(t, s.Router(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListCassettes(t *testing.T) {
	s, _ := newServer(t)
	code, body := getJSON(t, s.Router(), "/api/cassettes")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
}

func TestListCassettes_Filtered(t *testing.T) {
	s, _ := newServer(t)

	code, body := getJSON(t, s.Router(), "/api/cassettes?method=POST")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = getJSON(t, s.Router(), "/api/cassettes?errors_only=true")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
	entries := body["cassettes"].([]any)
	entry := entries[0].(map[string]any)
	assert.Equal(t, float64(502), entry["status"])
}

func TestListCassettes_BadLimit(t *testing.T) {
	s, _ := newServer(t)
	code, body := getJSON(t, s.Router(), "/api/cassettes?limit=many")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "limit")
}

func TestShowCassette(t *testing.T) {
	s, dir := newServer(t)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "peek.db"))
	require.NoError(t, err)
	defer cat.Close()
	_, err = cat.Index(context.Background(), dir)
	require.NoError(t, err)
	entries, err := cat.List(context.Background(), 1)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	rel, err := filepath.Rel(dir, entries[0].Path)
	require.NoError(t, err)

	code, body := getJSON(t, s.Router(), "/api/cassettes/"+filepath.ToSlash(rel))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.0", body["schema_version"])
	assert.Contains(t, body, "session")
	assert.Contains(t, body, "events")
}

func TestShowCassette_NotFound(t *testing.T) {
	s, _ := newServer(t)
	code, body := getJSON(t, s.Router(), "/api/cassettes/2026-01-02/GET__nope__00000000.json")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "cassette not found", body["error"])
}

func TestShowCassette_PathTraversalRejected(t *testing.T) {
	s, _ := newServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cassettes/..%2f..%2fetc%2fpasswd", nil)
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReindex(t *testing.T) {
	s, dir := newServer(t)
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/fresh"})

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/reindex", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["indexed"])

	_, list := getJSON(t, s.Router(), "/api/cassettes")
	assert.Equal(t, float64(3), list["count"])
}
