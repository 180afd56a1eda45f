package cassette

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsWellFormed(t *testing.T) {
	assert.Empty(t, Validate(sampleCassette()))
	assert.Empty(t, Validate(richCassette()))
}

func TestValidateMap_RejectsBadEventType(t *testing.T) {
	m := sampleCassette().ToMap()
	event := m["events"].([]any)[0].(map[string]any)
	event["type"] = "ftp"

	problems := ValidateMap(m)
	require.NotEmpty(t, problems)
}

func TestValidateMap_RejectsBadCapturePolicy(t *testing.T) {
	m := sampleCassette().ToMap()
	capture := m["policies"].(map[string]any)["capture"].(map[string]any)
	capture["store_request_body"] = "sometimes"

	problems := ValidateMap(m)
	require.NotEmpty(t, problems)
}

func TestValidateMap_RejectsMissingSessionID(t *testing.T) {
	m := sampleCassette().ToMap()
	session := m["session"].(map[string]any)
	session["id"] = ""

	problems := ValidateMap(m)
	require.NotEmpty(t, problems)
}
