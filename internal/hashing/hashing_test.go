package hashing

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBody_NilIsNone(t *testing.T) {
	assert.Equal(t, NoneHash, HashBody(nil))
}

func TestHashBody_BytesAndStringAgree(t *testing.T) {
	fromBytes := HashBody([]byte("hello"))
	fromString := HashBody("hello")
	assert.Equal(t, fromBytes, fromString)
	assert.True(t, strings.HasPrefix(fromBytes, Prefix))
}

func TestHashBody_StructuredIsKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}
	assert.Equal(t, HashBody(a), HashBody(b))
}

func TestHashBody_DistinctValuesDiffer(t *testing.T) {
	assert.NotEqual(t, HashBody("x"), HashBody("y"))
	assert.NotEqual(t, HashBody([]byte{}), HashBody(nil))
}

func TestShortHash_Truncates(t *testing.T) {
	short := ShortHash("payload", 8)
	assert.Len(t, short, 8)
	assert.NotContains(t, short, ":")

	full := ShortHash("payload", 0)
	assert.Len(t, full, 64)
}

func TestHashHeaders_AllowlistOnly(t *testing.T) {
	allowed := map[string]struct{}{"content-type": {}}

	h1 := HashHeaders(map[string]string{
		"Content-Type": "application/json",
		"X-Request-Id": "abc-123",
	}, allowed)
	h2 := HashHeaders(map[string]string{
		"Content-Type": "application/json",
		"X-Request-Id": "def-456",
	}, allowed)

	// Volatile headers outside the allow-list never affect the fingerprint.
	assert.Equal(t, h1, h2)
}

func TestHashHeaders_CaseFolded(t *testing.T) {
	allowed := map[string]struct{}{"content-type": {}}
	h1 := HashHeaders(map[string]string{"Content-Type": "text/plain"}, allowed)
	h2 := HashHeaders(map[string]string{"content-type": "text/plain"}, allowed)
	assert.Equal(t, h1, h2)
}

func TestHashHeaders_EmptySelectionIsNone(t *testing.T) {
	h := HashHeaders(map[string]string{"X-Other": "v"}, map[string]struct{}{"accept": {}})
	assert.Equal(t, NoneHash, h)
}

func TestMarshalCanonical_SortedCompact(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"z": []any{1, 2},
		"a": "text",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"text","z":[1,2]}`, string(out))
}

func TestMarshalCanonical_IntegralFloats(t *testing.T) {
	// encoding/json decodes numbers as float64; canonical form must not
	// grow a fractional part for integral values.
	out, err := MarshalCanonical(map[string]any{"n": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, `{"n":42}`, string(out))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical("<a>&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a>&</a>"`, string(out))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"bad": math.Inf(1)})
	require.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"bad": math.NaN()})
	require.Error(t, err)
}

func TestHashString_Stable(t *testing.T) {
	assert.Equal(t, HashString("fixed"), HashString("fixed"))
	assert.True(t, strings.HasPrefix(HashString("fixed"), Prefix))
}
