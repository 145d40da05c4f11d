// Package errors provides the standardized error taxonomy used across the
// triage services.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Code classifies an error so callers can decide how to react without
// inspecting message text.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeForbidden           Code = "FORBIDDEN"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeInternal            Code = "INTERNAL"
)

// Error is a structured service error. Message carries enough detail for the
// caller to act on (which precondition failed) without leaking internals.
type Error struct {
	Code      Code                   `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes errors.Is match on code alone so callers can compare against a
// bare &Error{Code: ...}.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the taxonomy code from any error chain. Unclassified errors
// report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func newError(code Code, retryable bool, message string, cause error) *Error {
	e := &Error{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewNotFound reports an absent application, user or request.
func NewNotFound(entity string, id interface{}) *Error {
	return newError(CodeNotFound, false, fmt.Sprintf("%s not found: %v", entity, id), nil)
}

// NewConflict reports an invalid state transition (already assigned, already
// terminal, duplicate pending request).
func NewConflict(message string) *Error {
	return newError(CodeConflict, false, message, nil)
}

// NewForbidden reports a caller lacking permission for the operation.
func NewForbidden(message string) *Error {
	return newError(CodeForbidden, false, message, nil)
}

// NewValidation reports malformed input at the service boundary.
func NewValidation(message string) *Error {
	return newError(CodeValidation, false, message, nil)
}

// NewUpstreamUnavailable reports an unreachable or misconfigured external
// source. Background sync degrades on it; interactive callers may retry.
func NewUpstreamUnavailable(source string, cause error) *Error {
	return newError(CodeUpstreamUnavailable, true, fmt.Sprintf("%s unavailable", source), cause)
}

// NewInternal wraps an unexpected failure, storage errors included.
func NewInternal(message string, cause error) *Error {
	return newError(CodeInternal, true, message, cause)
}
