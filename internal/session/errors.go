package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MismatchError is raised by GetNextEvent in strict mode. It is deliberately
// verbose: the rendered message must let an engineer see which outbound call
// changed and how without opening the cassette file.
type MismatchError struct {
	// CassettePath is the file the replay session was loaded from.
	CassettePath string

	// Endpoint is the inbound "METHOD /path" the cassette recorded.
	Endpoint string

	// EventIndex is the cursor position at which matching failed.
	EventIndex int

	// Expected describes the recorded event's signature (absent when the
	// cassette had no event at this index).
	Expected map[string]any

	// Actual is the attempted call's signature as passed by the caller.
	Actual map[string]any

	// Mismatches holds one human-readable description per mismatched field.
	Mismatches []string

	// Hint is the remediation suggestion.
	Hint string
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "replay mismatch at event %d", e.EventIndex)
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " (%s)", e.Endpoint)
	}
	if e.CassettePath != "" {
		fmt.Fprintf(&b, " [cassette: %s]", e.CassettePath)
	}
	for _, m := range e.Mismatches {
		b.WriteString("\n  - ")
		b.WriteString(m)
	}
	if len(e.Expected) > 0 {
		b.WriteString("\n  expected: ")
		b.WriteString(renderFields(e.Expected))
	}
	if len(e.Actual) > 0 {
		b.WriteString("\n  actual:   ")
		b.WriteString(renderFields(e.Actual))
	}
	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// renderFields prints a field map with sorted keys so error output is
// stable.
func renderFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// IsMismatch returns true if the error is a replay mismatch.
// Uses errors.As to handle wrapped errors.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// UsageError indicates adapter or plugin misuse of the session API, such as
// adding events to a finalized session or resolving a session outside any
// active request. Programming-error class; fails fast and loud.
type UsageError struct {
	Op      string
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("session usage error in %s: %s", e.Op, e.Message)
}

// IsUsageError returns true if the error is a session-usage error.
// Uses errors.As to handle wrapped errors.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
