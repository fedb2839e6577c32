package responsibility

import (
	"errors"
	"fmt"
)

// ErrTraceMismatch is returned when an explanation does not belong to the
// decision it is evaluated with.
var ErrTraceMismatch = errors.New("explanation trace_id does not match decision trace_id")

// ConfigurationError reports a governance option outside its domain.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error [%s=%v]: %s", e.Field, e.Value, e.Reason)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field string, value any, reason string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Value:  value,
		Reason: reason,
		Cause:  cause,
	}
}
