package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the road pipeline.
var (
	ErrNotFound       = errors.New("not found")
	ErrNoData         = errors.New(NoDataReason)
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotInitialized = errors.New("not initialized")
	ErrUpstream       = errors.New("upstream failure")
)

// Sentinel errors for validation failures.
var (
	ErrQuestionTooShort  = errors.New("question too short")
	ErrQuestionTooLong   = errors.New("question too long")
	ErrQuestionInjection = errors.New("question contains suspicious content")
	ErrInvalidRecord     = errors.New("invalid road version record")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// UpstreamError records a failing collaborator call (embedding service, row
// source, chat model). It matches both ErrUpstream and the cause.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// Upstream wraps err as an UpstreamError unless it already is one.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// ErrorKind classifies err for metrics and logs: "validation",
// "invalid_input", "not_found", "no_data", "not_initialized", "upstream" or
// "internal". A nil error has kind "".
func ErrorKind(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}
