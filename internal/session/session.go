package session

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// Mode discriminates the two session variants.
type Mode string

const (
	ModeRecording Mode = "recording"
	ModeReplaying Mode = "replaying"
)

// Session is the closed union over TraceSession and ReplaySession. Consumers
// switch exhaustively on Mode() and type-assert to the concrete variant.
type Session interface {
	ID() string
	Mode() Mode
}

// Options configures a new TraceSession. Policies is recorded verbatim into
// the cassette's audit block.
type Options struct {
	Service   string
	Env       string
	Framework string
	GitSHA    string
	Policies  cassette.AppliedPolicies
}

// TraceSession accumulates one inbound request's capture state.
//
// All mutating methods take the session mutex: two concurrent dependency
// calls within one request may race to AddEvent, and eid assignment must
// stay strictly sequential in arrival order.
type TraceSession struct {
	mu sync.Mutex

	id        string
	startedAt time.Time
	meta      cassette.SessionMeta
	policies  cassette.AppliedPolicies

	request   *cassette.RequestSnapshot
	response  *cassette.ResponseSnapshot
	events    []cassette.DependencyEvent
	errorInfo *cassette.ErrorInfo
	finalized bool
}

// NewTraceSession starts a recording session with a fresh UUID.
func NewTraceSession(opts Options) *TraceSession {
	now := time.Now()
	return &TraceSession{
		id:        uuid.NewString(),
		startedAt: now,
		meta: cassette.SessionMeta{
			RecordedAt:      now.UTC().Format(time.RFC3339),
			Service:         opts.Service,
			Env:             opts.Env,
			Framework:       opts.Framework,
			GitSHA:          opts.GitSHA,
			TapedeckVersion: cassette.Version,
			GoVersion:       runtime.Version(),
		},
		policies: opts.Policies,
	}
}

func (s *TraceSession) ID() string { return s.id }

// ShortID is the 8-character prefix used in cassette file names.
func (s *TraceSession) ShortID() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}

func (s *TraceSession) Mode() Mode { return ModeRecording }

// ElapsedMS is the monotonic time since session construction. Interceptors
// read this before issuing the real outbound call so event offsets share one
// clock.
func (s *TraceSession) ElapsedMS() float64 {
	return float64(time.Since(s.startedAt)) / float64(time.Millisecond)
}

// SetRequest stores the inbound request snapshot. Last write wins, but
// writing after finalization is a usage error.
func (s *TraceSession) SetRequest(r cassette.RequestSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return &UsageError{Op: "SetRequest", Message: "session already finalized"}
	}
	s.request = &r
	return nil
}

// SetResponse stores the outbound response snapshot.
func (s *TraceSession) SetResponse(r cassette.ResponseSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return &UsageError{Op: "SetResponse", Message: "session already finalized"}
	}
	s.response = &r
	return nil
}

// AddEvent assigns the next sequential eid (starting at 1), appends the
// event, and returns the assigned eid. Fails once the session is finalized;
// events must not be added retroactively.
func (s *TraceSession) AddEvent(event cassette.DependencyEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return 0, &UsageError{Op: "AddEvent", Message: "session already finalized"}
	}
	event.EID = len(s.events) + 1
	s.events = append(s.events, event)
	return event.EID, nil
}

// MarkError records that the inbound handler failed. Does not prevent a
// subsequent SetResponse: adapters often still observe the generated error
// response after catching the failure.
func (s *TraceSession) MarkError(errType, message, traceback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorInfo = &cassette.ErrorInfo{
		Type:      errType,
		Message:   message,
		Traceback: traceback,
	}
}

// HasError reports whether MarkError was called.
func (s *TraceSession) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorInfo != nil
}

// Finalize is the idempotent terminal transition. After it, AddEvent and the
// snapshot setters fail.
func (s *TraceSession) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = true
}

// Finalized reports whether Finalize has run.
func (s *TraceSession) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// ToCassette builds the immutable cassette from the accumulated state.
// Callable before finalization for programmatic convenience; it reflects
// whatever has been captured so far.
func (s *TraceSession) ToCassette() *cassette.Cassette {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta
	meta.ID = s.id

	c := &cassette.Cassette{
		SchemaVersion: cassette.SchemaVersion,
		Session:       meta,
		Events:        append([]cassette.DependencyEvent(nil), s.events...),
		Policies:      s.policies,
		Stats:         deriveStats(s.events),
	}
	if s.request != nil {
		c.Request = *s.request
	}
	if s.response != nil {
		c.Response = *s.response
	}
	if s.errorInfo != nil {
		info := *s.errorInfo
		c.ErrorInfo = &info
	}
	return c
}

func deriveStats(events []cassette.DependencyEvent) cassette.CaptureStats {
	stats := cassette.CaptureStats{
		EventCounts: make(map[string]int),
		TotalEvents: len(events),
	}
	for _, e := range events {
		stats.EventCounts[string(e.Type)]++
		stats.TotalDurationMS += e.DurationMS
	}
	return stats
}
