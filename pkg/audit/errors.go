package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for a trace ID.
	ErrNotFound = errors.New("audit record not found")

	// ErrRecorderClosed is returned when recording after Close.
	ErrRecorderClosed = errors.New("recorder is closed")

	// ErrBufferFull is returned when the asynchronous recorder cannot
	// accept a record in time.
	ErrBufferFull = errors.New("recorder buffer is full")
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "sqlite" or "memory"
	Operation string // "store", "query", "delete", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an invalid query.
type QueryError struct {
	Query *Query
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}

// RecorderError represents a failure to record an evaluation.
type RecorderError struct {
	TraceID string
	Cause   error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("recorder error [trace_id=%s]: %v", e.TraceID, e.Cause)
	}
	return fmt.Sprintf("recorder error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(traceID string, cause error) *RecorderError {
	return &RecorderError{
		TraceID: traceID,
		Cause:   cause,
	}
}

// RetentionError represents a failure while enforcing retention.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [retention_days=%d]: %v", e.RetentionDays, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{
		RetentionDays: retentionDays,
		Cause:         cause,
	}
}

// ExportError represents a failed export.
type ExportError struct {
	Format      string // "json", "csv", "file"
	RecordCount int
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}

// IntegrityError reports a record whose document no longer matches its
// content hash.
type IntegrityError struct {
	TraceID  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed [trace_id=%s]: content hash %s does not match recorded %s",
		e.TraceID, e.Actual, e.Expected)
}
