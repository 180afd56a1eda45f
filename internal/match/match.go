// Package match holds the pure signature-comparison logic used by replay.
//
// Normalization must be byte-for-byte reproducible between record and replay:
// a URL normalized at record time and the same URL normalized at replay time
// must compare equal, regardless of query parameter order or fragments.
package match

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tapedeck/tapedeck/internal/cassette"
)

// NormalizeURL strips the query string and fragment, keeping
// scheme://host/path verbatim. Case is preserved: real-world APIs can be
// case-sensitive in path segments.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		// Unparseable input still gets query/fragment stripped.
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	if parsed.Scheme == "" {
		return parsed.EscapedPath()
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
}

// NormalizeQuery parses a raw query string into a deterministic mapping:
// single-value parameters collapse to a scalar, multi-value parameters
// become a sorted list.
func NormalizeQuery(rawQuery string) map[string]any {
	if rawQuery == "" {
		return nil
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) == 0 {
		return nil
	}
	result := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			result[key] = vals[0]
			continue
		}
		sorted := make([]string, len(vals))
		copy(sorted, vals)
		sort.Strings(sorted)
		result[key] = sorted
	}
	return result
}

// SignaturesMatch compares an actual outbound-call signature against the
// recorded one. Returns whether they match plus one human-readable
// description per mismatched field, in a fixed field order. Optional fields
// compare equal only when absent on both sides; a field present on one side
// only is a mismatch.
//
// Body-hash comparison is opt-in: payloads legitimately vary (timestamps,
// nonces), so only callers that need strict payload fidelity enable it.
func SignaturesMatch(expected cassette.EventSignature, actual map[string]any, checkBodyHash bool) (bool, []string) {
	var mismatches []string

	expectedMethod := strings.ToUpper(expected.Method)
	actualMethod := strings.ToUpper(stringField(actual, "method"))
	if expectedMethod != actualMethod {
		mismatches = append(mismatches,
			fmt.Sprintf("method: expected %q, got %q", expectedMethod, actualMethod))
	}

	// A URL present on one side but not the other is a mismatch; only
	// absent-on-both compares equal.
	var actualURL string
	if raw := stringField(actual, "url"); raw != "" {
		actualURL = NormalizeURL(raw)
	}
	if expected.URL != actualURL {
		mismatches = append(mismatches,
			fmt.Sprintf("url: expected %q, got %q", expected.URL, actualURL))
	}

	if checkBodyHash && expected.BodyHash != "" {
		actualHash := stringField(actual, "body_hash")
		if expected.BodyHash != actualHash {
			got := "none"
			if actualHash != "" {
				got = truncateHash(actualHash)
			}
			mismatches = append(mismatches,
				fmt.Sprintf("body_hash: expected %q, got %q",
					truncateHash(expected.BodyHash), got))
		}
	}

	return len(mismatches) == 0, mismatches
}

// SignatureSummary renders a signature mapping as a one-line description for
// diagnostics, e.g. "httptap GET https://api.example.com/data".
func SignatureSummary(sig map[string]any) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{"lib", "method", "url"} {
		if v := stringField(sig, key); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "(empty signature)"
	}
	return strings.Join(parts, " ")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func truncateHash(h string) string {
	if len(h) <= 20 {
		return h
	}
	return h[:20] + "..."
}
