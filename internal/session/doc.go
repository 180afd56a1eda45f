// Package session implements the record and replay engines.
//
// One session instance corresponds to exactly one in-flight inbound request.
// TraceSession accumulates capture state during recording and hands back an
// immutable cassette; ReplaySession wraps a loaded cassette and serves
// recorded results through a monotonically advancing cursor.
//
// The session is a closed two-case variant: every consumer switches on
// Mode() and handles exactly ModeRecording and ModeReplaying. The "current
// session" travels on context.Context, never in a mutable global, so
// concurrent inbound requests cannot observe each other's state.
//
// AddEvent and GetNextEvent are non-blocking pure-data operations. The
// actual outbound I/O happens around them in the interceptors, which is why
// offsets and durations are measured by the caller on a monotonic clock and
// passed in.
package session
