package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error types for the ocrbatch service
type ErrorType string

const (
	// Request errors
	ErrorTypeBadInput        ErrorType = "bad_input"
	ErrorTypeNoValidInput    ErrorType = "no_valid_input"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeAlreadyTerminal ErrorType = "already_terminal"
	ErrorTypePayloadTooLarge ErrorType = "payload_too_large"

	// Processing errors
	ErrorTypeTransientIO ErrorType = "transient_io"
	ErrorTypeCacheIO     ErrorType = "cache_io"
	ErrorTypeTimeout     ErrorType = "timeout"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// JobError represents an error raised while handling a job or one of its files
type JobError struct {
	Type       ErrorType
	JobID      string
	FilePath   string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// New creates a new job error with context
func New(t ErrorType, op string, err error) *JobError {
	return &JobError{
		Type:       t,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Newf creates a new job error from a formatted message
func Newf(t ErrorType, op string, format string, args ...any) *JobError {
	return New(t, op, fmt.Errorf(format, args...))
}

// WithJob adds the job id to the error
func (e *JobError) WithJob(jobID string) *JobError {
	e.JobID = jobID
	return e
}

// WithFile adds the offending file path to the error
func (e *JobError) WithFile(path string) *JobError {
	e.FilePath = path
	return e
}

// Error implements the error interface
func (e *JobError) Error() string {
	switch {
	case e.FilePath != "":
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.FilePath, e.Underlying)
	case e.JobID != "":
		return fmt.Sprintf("%s %s failed for job %s: %v", e.Type, e.Operation, e.JobID, e.Underlying)
	default:
		return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
	}
}

// Unwrap returns the underlying error for errors.Is/As
func (e *JobError) Unwrap() error {
	return e.Underlying
}

// TypeOf extracts the ErrorType from err, or ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var je *JobError
	if errors.As(err, &je) {
		return je.Type
	}
	return ErrorTypeInternal
}

// Is reports whether err carries the given error type.
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// HTTPStatus maps an error to the status code the HTTP surface should return.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeBadInput, ErrorTypeNoValidInput, ErrorTypeAlreadyTerminal:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
