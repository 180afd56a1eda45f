package session

import (
	"fmt"
	"sync"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/match"
)

// ReplayOptions configures a ReplaySession.
type ReplayOptions struct {
	// Path is the cassette file the session was loaded from, carried into
	// mismatch errors for diagnostics.
	Path string

	// Strict fails on any type or signature mismatch. Lenient mode
	// downgrades mismatches to best-effort behavior for exploratory use.
	Strict bool

	// CheckBodyHash opts in to body-hash comparison during matching.
	CheckBodyHash bool

	// MockPlugins, when non-empty, restricts mocking to the named plugins.
	MockPlugins []string

	// LivePlugins always pass through to the real dependency, taking
	// precedence over MockPlugins.
	LivePlugins []string
}

// ReplaySession serves recorded results through a single linear cursor over
// the cassette's events. The cursor only moves forward; there is no rewind.
// Cursor ordering (not content-addressed lookup) is deliberate: dependency
// call order is itself behavior worth protecting, and an anywhere-in-the-
// cassette lookup would silently hide reordering regressions.
type ReplaySession struct {
	mu sync.Mutex

	cassette *cassette.Cassette
	opts     ReplayOptions

	cursor   int
	consumed []int
}

// NewReplaySession wraps a loaded cassette for replay.
func NewReplaySession(c *cassette.Cassette, opts ReplayOptions) *ReplaySession {
	return &ReplaySession{cassette: c, opts: opts}
}

func (s *ReplaySession) ID() string { return s.cassette.Session.ID }

func (s *ReplaySession) Mode() Mode { return ModeReplaying }

// Cassette exposes the wrapped cassette for inspection.
func (s *ReplaySession) Cassette() *cassette.Cassette { return s.cassette }

// Path is the file the cassette was loaded from.
func (s *ReplaySession) Path() string { return s.opts.Path }

// Strict reports whether mismatches fail instead of being ignored.
func (s *ReplaySession) Strict() bool { return s.opts.Strict }

// CurrentCursor returns the replay position: the number of events consumed
// or skipped so far.
func (s *ReplaySession) CurrentCursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// HasMoreEvents reports whether the cursor has not yet reached the end.
func (s *ReplaySession) HasMoreEvents() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor < len(s.cassette.Events)
}

// PeekNextEvent returns the event at the cursor when it matches the
// optional type filter ("" matches anything), without advancing. Diagnostic
// use only; normal flow goes through GetNextEvent.
func (s *ReplaySession) PeekNextEvent(eventType cassette.EventType) *cassette.DependencyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.cassette.Events) {
		return nil
	}
	event := s.cassette.Events[s.cursor]
	if eventType != "" && event.Type != eventType {
		return nil
	}
	return &event
}

// GetNextEvent is the core matching operation, called once per outbound
// call the application attempts.
//
// Past the end of the cassette: strict mode fails ("more calls than were
// recorded"), lenient mode returns (nil, nil) so the caller picks fallback
// behavior. A type mismatch at the cursor fails in strict mode and returns
// (nil, nil) without advancing in lenient mode. Signature mismatches fail
// in strict mode; lenient mode serves the recorded result anyway.
func (s *ReplaySession) GetNextEvent(expectedType cassette.EventType, actualSig map[string]any) (*cassette.EventResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.cassette.Events) {
		if !s.opts.Strict {
			return nil, nil
		}
		return nil, &MismatchError{
			CassettePath: s.opts.Path,
			Endpoint:     s.endpoint(),
			EventIndex:   s.cursor,
			Actual:       actualSig,
			Mismatches: []string{fmt.Sprintf(
				"no more events: cassette has %d recorded dependency calls, attempted call %d (%s)",
				len(s.cassette.Events), s.cursor+1, match.SignatureSummary(actualSig))},
			Hint: "the code made more dependency calls than were recorded; re-record the cassette",
		}
	}

	event := s.cassette.Events[s.cursor]

	if expectedType != "" && event.Type != expectedType {
		if !s.opts.Strict {
			return nil, nil
		}
		return nil, &MismatchError{
			CassettePath: s.opts.Path,
			Endpoint:     s.endpoint(),
			EventIndex:   s.cursor,
			Expected:     signatureMap(event),
			Actual:       actualSig,
			Mismatches: []string{fmt.Sprintf(
				"event type: expected %q, got %q", event.Type, expectedType)},
			Hint: "dependency call order changed since recording; re-record the cassette",
		}
	}

	ok, mismatches := match.SignaturesMatch(event.Signature, actualSig, s.opts.CheckBodyHash)
	if !ok && s.opts.Strict {
		return nil, &MismatchError{
			CassettePath: s.opts.Path,
			Endpoint:     s.endpoint(),
			EventIndex:   s.cursor,
			Expected:     signatureMap(event),
			Actual:       actualSig,
			Mismatches:   mismatches,
			Hint:         "re-record the cassette, or disable strict replay to serve the recorded result anyway",
		}
	}

	s.consumed = append(s.consumed, s.cursor)
	s.cursor++
	result := event.Result
	return &result, nil
}

// GetUnconsumedEvents returns the suffix of events the cursor never
// reached. Adapters call this post-request to warn that the recorded
// interaction was not fully exercised.
func (s *ReplaySession) GetUnconsumedEvents() []cassette.DependencyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cassette.DependencyEvent(nil), s.cassette.Events[s.cursor:]...)
}

// ConsumedIndexes returns the event indexes served so far, in consumption
// order.
func (s *ReplaySession) ConsumedIndexes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.consumed...)
}

// ShouldMockPlugin decides whether a named interceptor serves recorded
// results or passes through to the live dependency. Precedence: an entry in
// LivePlugins always wins (never mock); otherwise a non-empty MockPlugins
// list restricts mocking to its members; otherwise everything is mocked.
func (s *ReplaySession) ShouldMockPlugin(name string) bool {
	for _, p := range s.opts.LivePlugins {
		if p == name {
			return false
		}
	}
	if len(s.opts.MockPlugins) > 0 {
		for _, p := range s.opts.MockPlugins {
			if p == name {
				return true
			}
		}
		return false
	}
	return true
}

func (s *ReplaySession) endpoint() string {
	return s.cassette.Request.Method + " " + s.cassette.Request.Path
}

func signatureMap(event cassette.DependencyEvent) map[string]any {
	sig := event.Signature
	m := map[string]any{
		"type":   string(event.Type),
		"lib":    sig.Lib,
		"method": sig.Method,
	}
	if sig.URL != "" {
		m["url"] = sig.URL
	}
	if sig.HeadersHash != "" {
		m["headers_hash"] = sig.HeadersHash
	}
	if sig.BodyHash != "" {
		m["body_hash"] = sig.BodyHash
	}
	return m
}
