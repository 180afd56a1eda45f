package cassette

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/tapedeck/tapedeck/internal/hashing"
	"github.com/tapedeck/tapedeck/internal/redact"
)

// NewBodySnapshot builds the stored form of a raw body. The hash is computed
// over the original bytes before redaction and truncation. When store is
// false only the fingerprint and size are kept. JSON payloads are parsed and
// key-redacted; textual payloads get PII masking; everything else is stored
// base64-encoded.
//
// A zero-length body has no snapshot at all; callers represent that as nil.
func NewBodySnapshot(raw []byte, contentType string, store bool, maxKB int) *BodySnapshot {
	if len(raw) == 0 {
		return nil
	}

	size := len(raw)
	snapshot := &BodySnapshot{
		Hash:      hashing.HashBody(raw),
		SizeBytes: &size,
	}
	if !store {
		return snapshot
	}

	kept, truncated := redact.TruncateBody(raw, maxKB)
	snapshot.Captured = true
	snapshot.Truncated = truncated

	if strings.Contains(strings.ToLower(contentType), "json") {
		var parsed any
		if err := json.Unmarshal(kept, &parsed); err == nil {
			snapshot.Encoding = "json"
			snapshot.Data = redact.Body(parsed, nil)
			return snapshot
		}
		// Truncation can cut a JSON document mid-token; fall through to text.
	}

	if utf8.Valid(kept) {
		snapshot.Encoding = "text"
		snapshot.Data = redact.MaskPIIInText(string(kept))
		return snapshot
	}

	snapshot.Encoding = "bytes"
	snapshot.Data = base64.StdEncoding.EncodeToString(kept)
	return snapshot
}
