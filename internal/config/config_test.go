package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedeck/tapedeck/internal/redact"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeOff, cfg.Mode)
	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, "./cassettes", cfg.CassetteDir)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 64, cfg.MaxBodyKB)
	assert.True(t, cfg.StrictReplay)
	assert.Equal(t, DefaultExcludePaths, cfg.ExcludePaths)
	assert.Equal(t, redact.CaptureNever, cfg.RequestCapturePolicy())
	assert.Equal(t, redact.CaptureOnError, cfg.ResponseCapturePolicy())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TAPEDECK_MODE", "record")
	t.Setenv("TAPEDECK_SERVICE", "checkout")
	t.Setenv("TAPEDECK_SAMPLE_RATE", "0.5")
	t.Setenv("TAPEDECK_MOCK_PLUGINS", "http, redis")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeRecord, cfg.Mode)
	assert.True(t, cfg.IsRecordMode())
	assert.Equal(t, "checkout", cfg.Service)
	assert.Equal(t, 0.5, cfg.SampleRate)
	assert.Equal(t, []string{"http", "redis"}, cfg.MockPlugins)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tapedeck.yaml")
	content := `
mode: replay
cassette_path: /tmp/c.json
service: billing
exclude_paths:
  - /internal
strict_replay: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsReplayMode())
	assert.Equal(t, "billing", cfg.Service)
	assert.Equal(t, []string{"/internal"}, cfg.ExcludePaths)
	assert.False(t, cfg.StrictReplay)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tapedeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: from-file\n"), 0o644))
	t.Setenv("TAPEDECK_SERVICE", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Service)
}

func TestLoad_InvalidMode(t *testing.T) {
	t.Setenv("TAPEDECK_MODE", "sideways")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "mode")
}

func TestValidate_Ranges(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.SampleRate = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_rate")

	cfg = base()
	cfg.MaxBodyKB = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_body_kb")

	cfg = base()
	cfg.Mode = ModeReplay
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassette_path")

	cfg = base()
	cfg.StoreRequestBody = "sometimes"
	require.Error(t, cfg.Validate())
}

func TestShouldTrace(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.ShouldTrace("/checkout"))
	assert.False(t, cfg.ShouldTrace("/health"))
	assert.False(t, cfg.ShouldTrace("/health/live"))
	assert.False(t, cfg.ShouldTrace("/metrics"))
}

func TestShouldSample_Extremes(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.SampleRate = 1
	for i := 0; i < 10; i++ {
		assert.True(t, cfg.ShouldSample())
	}

	cfg.SampleRate = 0
	for i := 0; i < 10; i++ {
		assert.False(t, cfg.ShouldSample())
	}
}

func TestShouldMockPlugin_Precedence(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Defaults: mock everything.
	assert.True(t, cfg.ShouldMockPlugin("db"))

	cfg.MockPlugins = []string{"http"}
	assert.True(t, cfg.ShouldMockPlugin("http"))
	assert.False(t, cfg.ShouldMockPlugin("db"))

	cfg.LivePlugins = []string{"http"}
	assert.False(t, cfg.ShouldMockPlugin("http"))
}
