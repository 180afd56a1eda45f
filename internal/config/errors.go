package config

import (
	"errors"
	"fmt"
)

// Error indicates an invalid configuration value, reported at construction.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsConfigError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
