package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobError_MessageShapes(t *testing.T) {
	base := stderrors.New("disk full")

	tests := []struct {
		name     string
		err      *JobError
		expected string
	}{
		{
			name:     "bare",
			err:      New(ErrorTypeTransientIO, "stage", base),
			expected: "transient_io stage failed: disk full",
		},
		{
			name:     "with job",
			err:      New(ErrorTypeInternal, "archive", base).WithJob("abc123"),
			expected: "internal archive failed for job abc123: disk full",
		},
		{
			name:     "file wins over job",
			err:      New(ErrorTypeTransientIO, "stage", base).WithJob("abc123").WithFile("a/b.pdf"),
			expected: "transient_io stage failed for a/b.pdf: disk full",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestJobError_Unwrap(t *testing.T) {
	base := stderrors.New("missing")
	wrapped := fmt.Errorf("outer: %w", New(ErrorTypeNotFound, "status", base))

	assert.True(t, stderrors.Is(wrapped, base))
	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeNotFound))
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(stderrors.New("anything")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected int
	}{
		{ErrorTypeBadInput, http.StatusBadRequest},
		{ErrorTypeNoValidInput, http.StatusBadRequest},
		{ErrorTypeAlreadyTerminal, http.StatusBadRequest},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrorTypeTransientIO, http.StatusInternalServerError},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(string(tc.errType), func(t *testing.T) {
			err := Newf(tc.errType, "op", "boom")
			assert.Equal(t, tc.expected, HTTPStatus(err))
		})
	}
}
