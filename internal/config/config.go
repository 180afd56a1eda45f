// Package config loads and validates tapedeck runtime configuration.
//
// Sources, in increasing precedence: built-in defaults, an optional YAML
// file, and TAPEDECK_* environment variables. Validation runs at
// construction and never defers: a bad mode or out-of-range sample rate is
// an immediate error, not a latent one.
package config

import (
	"math/rand"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tapedeck/tapedeck/internal/redact"
)

// Mode is the top-level operating mode.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"
)

// DefaultExcludePaths are never traced: health checks and introspection
// endpoints generate noise cassettes nobody replays.
var DefaultExcludePaths = []string{"/health", "/metrics", "/docs", "/openapi.json"}

// Config is the resolved tapedeck configuration.
type Config struct {
	Mode    Mode   `koanf:"mode"`
	Service string `koanf:"service"`
	Env     string `koanf:"env"`
	GitSHA  string `koanf:"git_sha"`

	CassetteDir  string `koanf:"cassette_dir"`
	CassettePath string `koanf:"cassette_path"`
	Compress     bool   `koanf:"compress"`

	SampleRate   float64  `koanf:"sample_rate"`
	ErrorsOnly   bool     `koanf:"errors_only"`
	ExcludePaths []string `koanf:"exclude_paths"`

	RedactHeaderMode  string   `koanf:"redact_header_mode"`
	SensitiveHeaders  []string `koanf:"sensitive_headers"`
	SensitiveKeys     []string `koanf:"sensitive_keys"`
	StoreRequestBody  string   `koanf:"store_request_body"`
	StoreResponseBody string   `koanf:"store_response_body"`
	MaxBodyKB         int      `koanf:"max_body_kb"`

	StrictReplay  bool     `koanf:"strict_replay"`
	CheckBodyHash bool     `koanf:"check_body_hash"`
	MockPlugins   []string `koanf:"mock_plugins"`
	LivePlugins   []string `koanf:"live_plugins"`

	S3Bucket string `koanf:"s3_bucket"`
	S3Prefix string `koanf:"s3_prefix"`
	S3Region string `koanf:"s3_region"`

	DashboardAddr string `koanf:"dashboard_addr"`
}

// EnvPrefix namespaces tapedeck environment variables.
const EnvPrefix = "TAPEDECK_"

// listKeys may arrive from the environment as comma-separated strings.
var listKeys = []string{
	"exclude_paths", "sensitive_headers", "sensitive_keys",
	"mock_plugins", "live_plugins",
}

// Load resolves configuration from defaults, an optional YAML file, and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &Error{Field: "config_file", Message: err.Error()}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, &Error{Field: "env", Message: err.Error()}
	}

	applyDefaults(k)

	for _, key := range listKeys {
		if raw := k.Get(key); raw != nil {
			if s, ok := raw.(string); ok {
				k.Set(key, splitList(s))
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &Error{Field: "config", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"mode":                string(ModeOff),
		"service":             "service",
		"env":                 "dev",
		"cassette_dir":        "./cassettes",
		"sample_rate":         1.0,
		"exclude_paths":       DefaultExcludePaths,
		"redact_header_mode":  string(redact.HeaderDrop),
		"store_request_body":  string(redact.CaptureNever),
		"store_response_body": string(redact.CaptureOnError),
		"max_body_kb":         64,
		"strict_replay":       true,
		"dashboard_addr":      ":8731",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks value ranges and enums. Called by Load; exported for
// configurations constructed programmatically.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeOff, ModeRecord, ModeReplay:
	default:
		return &Error{Field: "mode", Message: "must be one of off, record, replay: got " + string(c.Mode)}
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return &Error{Field: "sample_rate", Message: "must be between 0 and 1"}
	}
	if c.MaxBodyKB < 0 {
		return &Error{Field: "max_body_kb", Message: "must not be negative"}
	}
	switch redact.HeaderMode(c.RedactHeaderMode) {
	case redact.HeaderDrop, redact.HeaderMask:
	default:
		return &Error{Field: "redact_header_mode", Message: "must be drop or mask: got " + c.RedactHeaderMode}
	}
	if !redact.CapturePolicy(c.StoreRequestBody).Valid() {
		return &Error{Field: "store_request_body", Message: "must be never, on_error, or always"}
	}
	if !redact.CapturePolicy(c.StoreResponseBody).Valid() {
		return &Error{Field: "store_response_body", Message: "must be never, on_error, or always"}
	}
	if c.Mode == ModeReplay && c.CassettePath == "" {
		return &Error{Field: "cassette_path", Message: "required in replay mode"}
	}
	return nil
}

// IsEnabled reports whether tapedeck participates in requests at all.
func (c *Config) IsEnabled() bool { return c.Mode != ModeOff }

func (c *Config) IsRecordMode() bool { return c.Mode == ModeRecord }

func (c *Config) IsReplayMode() bool { return c.Mode == ModeReplay }

// ShouldTrace reports whether a request path is eligible for tracing.
// Exclusions match by prefix so parameterized health endpoints are covered.
func (c *Config) ShouldTrace(path string) bool {
	for _, excluded := range c.ExcludePaths {
		if strings.HasPrefix(path, excluded) {
			return false
		}
	}
	return true
}

// ShouldSample rolls the sampling dice for one request.
func (c *Config) ShouldSample() bool {
	if c.SampleRate >= 1 {
		return true
	}
	if c.SampleRate <= 0 {
		return false
	}
	return rand.Float64() < c.SampleRate
}

// ShouldMockPlugin applies the hybrid-replay precedence: live list always
// wins, then an explicit mock list restricts, then everything is mocked.
func (c *Config) ShouldMockPlugin(name string) bool {
	for _, p := range c.LivePlugins {
		if p == name {
			return false
		}
	}
	if len(c.MockPlugins) > 0 {
		for _, p := range c.MockPlugins {
			if p == name {
				return true
			}
		}
		return false
	}
	return true
}

// RequestCapturePolicy returns the typed request-body policy.
func (c *Config) RequestCapturePolicy() redact.CapturePolicy {
	return redact.CapturePolicy(c.StoreRequestBody)
}

// ResponseCapturePolicy returns the typed response-body policy.
func (c *Config) ResponseCapturePolicy() redact.CapturePolicy {
	return redact.CapturePolicy(c.StoreResponseBody)
}

// HeaderMode returns the typed header redaction mode.
func (c *Config) HeaderMode() redact.HeaderMode {
	return redact.HeaderMode(c.RedactHeaderMode)
}
