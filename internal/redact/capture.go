package redact

// CapturePolicy decides when request/response bodies are persisted.
type CapturePolicy string

const (
	CaptureNever   CapturePolicy = "never"
	CaptureOnError CapturePolicy = "on_error"
	CaptureAlways  CapturePolicy = "always"
)

// Valid reports whether p is a known policy value.
func (p CapturePolicy) Valid() bool {
	switch p {
	case CaptureNever, CaptureOnError, CaptureAlways:
		return true
	}
	return false
}

// ShouldStoreBody applies a capture policy given whether the surrounding
// request or response was an error. Unknown policies store nothing.
func ShouldStoreBody(policy CapturePolicy, isError bool) bool {
	switch policy {
	case CaptureAlways:
		return true
	case CaptureNever:
		return false
	case CaptureOnError:
		return isError
	}
	return false
}

// TruncateBody caps stored body bytes at maxKB kilobytes and reports
// whether truncation occurred. Independent of the store/don't-store
// decision; callers gate on ShouldStoreBody separately.
func TruncateBody(data []byte, maxKB int) ([]byte, bool) {
	maxBytes := maxKB * 1024
	if len(data) <= maxBytes {
		return data, false
	}
	return data[:maxBytes], true
}
