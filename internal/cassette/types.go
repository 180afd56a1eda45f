package cassette

// Version is the library version stamped into SessionMeta.
const Version = "0.2.0"

// SchemaVersion is the version written into every new cassette.
const SchemaVersion = "1.0"

// SupportedSchemaVersions lists every version Read accepts. Older versions
// are migrated forward; anything else is rejected with a SchemaError.
var SupportedSchemaVersions = []string{"0.1", "1.0"}

// SchemaVersionSupported reports whether v can be read, possibly via
// migration.
func SchemaVersionSupported(v string) bool {
	for _, s := range SupportedSchemaVersions {
		if s == v {
			return true
		}
	}
	return false
}

// EventType classifies a dependency event by the kind of outbound call.
type EventType string

const (
	EventHTTPClient EventType = "http.client"
	EventDBQuery    EventType = "db.query"
	EventRedis      EventType = "redis"
	EventCustom     EventType = "custom"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventHTTPClient, EventDBQuery, EventRedis, EventCustom:
		return true
	}
	return false
}

// Compression selects the on-disk encoding for cassette files.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// SessionMeta is the identity and provenance block of a cassette.
// Created once at session start, immutable.
type SessionMeta struct {
	ID              string
	RecordedAt      string
	Service         string
	Env             string
	Framework       string
	TapedeckVersion string
	GoVersion       string
	GitSHA          string
}

// BodySnapshot records what is known about a request, response, or event
// body. Captured distinguishes "we chose not to store this" from "there was
// no body" (a nil snapshot). Hash is computed over the original bytes,
// before redaction and truncation, so it stays a stable fingerprint even
// when Data is absent.
type BodySnapshot struct {
	Captured  bool
	Encoding  string
	Data      any
	Truncated bool
	SizeBytes *int
	Hash      string
}

// RequestSnapshot captures the inbound request, set once at session start.
type RequestSnapshot struct {
	Method        string
	Path          string
	RouteTemplate string
	Headers       map[string]string
	Query         map[string]string
	Body          *BodySnapshot
	ClientIP      string
	UserAgent     string
}

// ResponseSnapshot captures the outbound response, set once at session end.
type ResponseSnapshot struct {
	Status     int
	DurationMS float64
	Headers    map[string]string
	Body       *BodySnapshot
}

// EventSignature is the matchable fingerprint of an outbound call. URL is
// normalized (scheme+host+path, query and fragment stripped); HeadersHash
// covers only allow-listed headers; BodyHash covers canonical JSON for
// structured bodies, raw bytes otherwise.
type EventSignature struct {
	Lib         string
	Method      string
	URL         string
	Query       map[string]any
	HeadersHash string
	BodyHash    string
}

// EventResult is the recorded outcome of an outbound call. Status is a
// pointer because 0 and negative values are meaningful library-specific
// codes, so absence must be distinguishable.
type EventResult struct {
	Status    *int
	Headers   map[string]string
	Body      *BodySnapshot
	Error     string
	ErrorType string
}

// DependencyEvent is the unit of outbound-call capture. EID values are
// contiguous from 1 and strictly increasing in call order within a session;
// replay cursoring relies on that ordering. StartOffsetMS is measured from
// session start so cassettes are portable across recording times.
type DependencyEvent struct {
	EID           int
	Type          EventType
	StartOffsetMS float64
	DurationMS    float64
	Signature     EventSignature
	Result        EventResult
}

// AppliedPolicies records the redaction, capture, and sampling rules that
// were in effect when the cassette was recorded, for auditability.
type AppliedPolicies struct {
	RedactionMode     string
	RedactionRules    []string
	MaxBodyKB         int
	StoreRequestBody  string
	StoreResponseBody string
	SampleRate        float64
	ErrorsOnly        bool
}

// CaptureStats aggregates counts and durations over a cassette's events.
type CaptureStats struct {
	EventCounts     map[string]int
	TotalEvents     int
	TotalDurationMS float64
}

// ErrorInfo describes an error raised by the inbound request handler.
type ErrorInfo struct {
	Type      string
	Message   string
	Traceback string
}

// Cassette is the root persisted artifact of one recorded request.
// Constructed once at the end of a record pass, immutable thereafter.
// The Events ordering is the authoritative replay order.
type Cassette struct {
	SchemaVersion string
	Session       SessionMeta
	Request       RequestSnapshot
	Response      ResponseSnapshot
	Events        []DependencyEvent
	Policies      AppliedPolicies
	Stats         CaptureStats
	ErrorInfo     *ErrorInfo
}

// Int returns a pointer to v, for optional scalar fields.
func Int(v int) *int { return &v }
