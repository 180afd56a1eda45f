// Package testutil builds cassette fixtures for tests that need recorded
// files on disk (catalog, dashboard, CLI).
package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// FixtureOptions shapes a generated cassette. Zero values get sensible
// defaults so most tests only set what they assert on.
type FixtureOptions struct {
	SessionID   string
	RecordedAt  string
	Service     string
	Env         string
	Method      string
	Path        string
	Route       string
	Status      int
	DurationMS  float64
	EventCount  int
	HasError    bool
	Compression cassette.Compression
}

func (o *FixtureOptions) fillDefaults(n int) {
	if o.SessionID == "" {
		o.SessionID = fmt.Sprintf("%08d-0000-0000-0000-000000000000", n)
	}
	if o.RecordedAt == "" {
		o.RecordedAt = "2026-01-02T03:04:05Z"
	}
	if o.Service == "" {
		o.Service = "checkout"
	}
	if o.Env == "" {
		o.Env = "test"
	}
	if o.Method == "" {
		o.Method = "GET"
	}
	if o.Path == "" {
		o.Path = "/checkout"
	}
	if o.Status == 0 {
		o.Status = 200
	}
	if o.DurationMS == 0 {
		o.DurationMS = 150
	}
	if o.Compression == "" {
		o.Compression = cassette.CompressionNone
	}
}

var fixtureSeq int

// Cassette builds an in-memory cassette from the options.
func Cassette(opts FixtureOptions) *cassette.Cassette {
	fixtureSeq++
	opts.fillDefaults(fixtureSeq)

	events := make([]cassette.DependencyEvent, opts.EventCount)
	counts := make(map[string]int)
	total := 0.0
	for i := range events {
		events[i] = cassette.DependencyEvent{
			EID:           i + 1,
			Type:          cassette.EventHTTPClient,
			StartOffsetMS: float64(i * 5),
			DurationMS:    10,
			Signature: cassette.EventSignature{
				Lib:    "httptap",
				Method: "GET",
				URL:    fmt.Sprintf("https://api.example.com/data/%d", i),
			},
			Result: cassette.EventResult{Status: cassette.Int(200)},
		}
		counts[string(cassette.EventHTTPClient)]++
		total += 10
	}

	c := &cassette.Cassette{
		SchemaVersion: cassette.SchemaVersion,
		Session: cassette.SessionMeta{
			ID:              opts.SessionID,
			RecordedAt:      opts.RecordedAt,
			Service:         opts.Service,
			Env:             opts.Env,
			Framework:       "net/http",
			TapedeckVersion: cassette.Version,
			GoVersion:       "go1.25",
		},
		Request: cassette.RequestSnapshot{
			Method:        opts.Method,
			Path:          opts.Path,
			RouteTemplate: opts.Route,
		},
		Response: cassette.ResponseSnapshot{
			Status:     opts.Status,
			DurationMS: opts.DurationMS,
		},
		Events: events,
		Policies: cassette.AppliedPolicies{
			RedactionMode:     "drop",
			MaxBodyKB:         64,
			StoreRequestBody:  "never",
			StoreResponseBody: "on_error",
			SampleRate:        1,
		},
		Stats: cassette.CaptureStats{
			EventCounts:     counts,
			TotalEvents:     len(events),
			TotalDurationMS: total,
		},
	}
	if opts.HasError {
		c.ErrorInfo = &cassette.ErrorInfo{
			Type:    "HandlerError",
			Message: "boom",
		}
	}
	return c
}

// WriteCassette persists a fixture cassette under dir and returns the path.
func WriteCassette(t *testing.T, dir string, opts FixtureOptions) string {
	t.Helper()
	compression := opts.Compression
	if compression == "" {
		compression = cassette.CompressionNone
	}
	path, err := cassette.Write(Cassette(opts), dir, compression)
	require.NoError(t, err)
	return path
}
