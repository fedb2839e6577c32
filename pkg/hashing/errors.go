package hashing

import "fmt"

// SerializationError is returned when a value has no canonical encoding.
// Path locates the offending value using a JSONPath-like notation rooted at "$".
type SerializationError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("serialization error: %s", e.Reason)
	}
	return fmt.Sprintf("serialization error at %s: %s", e.Path, e.Reason)
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(path, reason string) *SerializationError {
	return &SerializationError{
		Path:   path,
		Reason: reason,
	}
}
