// Package hashing provides stable content hashing for cassette signatures.
//
// Hashes are used as fingerprints when matching dependency calls during
// replay. They must be deterministic across processes and recordings, so
// structured values are serialized through canonical JSON (sorted keys,
// compact separators, NFC-normalized strings) before hashing.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Prefix identifies the hash algorithm in stored fingerprints.
// Stored as part of the value so the algorithm can be migrated later.
const Prefix = "sha256:"

// NoneHash is the fingerprint of an absent body.
// Distinct from the hash of an empty byte slice.
const NoneHash = Prefix + "none"

// HashBody computes a stable fingerprint of body data.
//
// nil returns NoneHash. Byte slices and strings are hashed directly.
// Any other value is serialized via canonical JSON first; values that
// cannot be canonically serialized fall back to their fmt representation.
func HashBody(data any) string {
	if data == nil {
		return NoneHash
	}

	var raw []byte
	switch v := data.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		canonical, err := MarshalCanonical(v)
		if err != nil {
			canonical = []byte(fmt.Sprintf("%v", v))
		}
		raw = canonical
	}

	sum := sha256.Sum256(raw)
	return Prefix + hex.EncodeToString(sum[:])
}

// HashString computes the fingerprint of a string value.
func HashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return Prefix + hex.EncodeToString(sum[:])
}

// ShortHash returns a truncated fingerprint without the algorithm prefix,
// for display and file naming.
func ShortHash(data any, length int) string {
	full := strings.TrimPrefix(HashBody(data), Prefix)
	if length > 0 && length < len(full) {
		return full[:length]
	}
	return full
}

// HashHeaders computes a fingerprint over an allow-listed subset of headers.
//
// Only headers named in allowed (lowercase) participate, so volatile headers
// like request IDs injected by proxies never perturb the fingerprint. Keys
// are case-folded before hashing so header casing differences do not matter.
func HashHeaders(headers map[string]string, allowed map[string]struct{}) string {
	kept := make(map[string]string, len(headers))
	for key, value := range headers {
		lower := strings.ToLower(key)
		if _, ok := allowed[lower]; ok {
			kept[lower] = value
		}
	}
	if len(kept) == 0 {
		return NoneHash
	}

	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kept[k])
		b.WriteByte('\n')
	}
	return HashString(b.String())
}
