package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tapedeck/tapedeck/internal/testutil"
)

func execute(args ...string) (string, string, error) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_RejectsInvalidFormat(t *testing.T) {
	_, _, err := execute("--format", "xml", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestList_Text(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/orders"})
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "POST", Path: "/orders"})

	out, _, err := execute("list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "METHOD")
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, "POST")
	assert.Contains(t, out, "/orders")
}

func TestList_JSON(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/orders"})

	out, _, err := execute("--format", "json", "list", "--dir", dir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestList_EmptyDir(t *testing.T) {
	out, _, err := execute("list", "--dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "no cassettes")
}

func TestShow_Summary(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteCassette(t, dir, testutil.FixtureOptions{
		Method: "GET", Path: "/orders", EventCount: 2,
	})

	out, _, err := execute("show", path, "--events")
	require.NoError(t, err)
	assert.Contains(t, out, "GET /orders")
	assert.Contains(t, out, "Events:    2")
	assert.Contains(t, out, "[1] http.client")
}

func TestShow_YAML(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/orders"})

	out, _, err := execute("show", path, "-o", "yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "1.0", doc["schema_version"])
}

func TestShow_MissingFileExitsWithCommandError(t *testing.T) {
	_, _, err := execute("show", filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_OK(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteCassette(t, dir, testutil.FixtureOptions{})

	out, _, err := execute("validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+path)
}

func TestValidate_JSONEnvelope(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteCassette(t, dir, testutil.FixtureOptions{})

	out, _, err := execute("--format", "json", "validate", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestIndexAndSearch(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/orders"})
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "POST", Path: "/orders", Status: 503, HasError: true})

	out, _, err := execute("index", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 cassette(s)")

	out, _, err = execute("search", "--dir", dir, "--errors-only")
	require.NoError(t, err)
	assert.Contains(t, out, "POST")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2, "header plus one match")

	out, _, err = execute("--format", "json", "search", "--dir", dir, "--method", "GET")
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestSearch_Reindex(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCassette(t, dir, testutil.FixtureOptions{Method: "GET", Path: "/orders"})

	out, _, err := execute("search", "--dir", dir, "--reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "/orders")
}

func TestPush_RequiresBucket(t *testing.T) {
	_, _, err := execute("push", "--dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}
