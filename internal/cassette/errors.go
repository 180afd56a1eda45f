package cassette

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError indicates the requested cassette file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cassette not found: %s", e.Path)
}

// IsNotFound returns true if the error is a missing-cassette error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// SchemaError indicates a cassette declares a schema version this build
// cannot read.
type SchemaError struct {
	Path    string
	Actual  string
	Allowed []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unsupported cassette schema version %q in %s (supported: %s)",
		e.Actual, e.Path, strings.Join(e.Allowed, ", "))
}

// IsSchemaError returns true if the error is a schema-version error.
// Uses errors.As to handle wrapped errors.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
