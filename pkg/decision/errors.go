package decision

import "fmt"

// ValidationError reports a feature or policy value that cannot be scored.
type ValidationError struct {
	Field  string // "features.<name>" or "policy.<name>"
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error [%s]: %s: %v", e.Field, e.Reason, e.Cause)
	}
	return fmt.Sprintf("validation error [%s]: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, reason string, cause error) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Cause:  cause,
	}
}
