package cassette

import (
	"regexp"
	"strings"
	"time"
)

const (
	// ExtJSON is the uncompressed cassette file extension.
	ExtJSON = ".json"
	// ExtGzip is the gzip-compressed cassette file extension. Compression
	// is detected from the suffix alone, never by sniffing bytes.
	ExtGzip = ".json.gz"
)

var (
	routeParamPattern   = regexp.MustCompile(`\{([^}]*)\}`)
	nonAlphanumericRuns = regexp.MustCompile(`[^a-z0-9]+`)
)

// SanitizeRoute turns a route template or path into a filename-safe token.
// Lowercases, unwraps {param} placeholders to the bare name, and collapses
// every remaining non-alphanumeric run to a single underscore.
func SanitizeRoute(route string) string {
	s := strings.ToLower(route)
	s = routeParamPattern.ReplaceAllString(s, "$1")
	s = nonAlphanumericRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "root"
	}
	return s
}

// Filename builds the local-store file name for a cassette:
// {METHOD}__{sanitized_route}__{short_session_id}.json, with a .gz suffix
// when compressed.
func Filename(method, route, sessionID string, compression Compression) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	name := strings.ToUpper(method) + "__" + SanitizeRoute(route) + "__" + short + ExtJSON
	if compression == CompressionGzip {
		name += ".gz"
	}
	return name
}

// DateDirectory is the date-stamped subdirectory cassettes are grouped under.
func DateDirectory(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
