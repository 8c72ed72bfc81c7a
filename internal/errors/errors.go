// Package errors provides the unified error taxonomy for the context engine.
// Every failure that crosses a component boundary is classified here so that
// transport code can map it to an HTTP status and retry logic can decide
// whether another attempt makes sense.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines the category of error for handling and response mapping.
type ErrorType string

const (
	// Request-side errors
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeMissingCaseID ErrorType = "MISSING_CASE_ID"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"

	// Orchestration errors
	ErrorTypeDeadlineExceeded ErrorType = "DEADLINE_EXCEEDED"
	ErrorTypeBuildCancelled   ErrorType = "BUILD_CANCELLED"

	// Upstream errors
	ErrorTypeUnavailable ErrorType = "UPSTREAM_UNAVAILABLE"
	ErrorTypeRejected    ErrorType = "UPSTREAM_REJECTED"

	// Everything else
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError is the single error type used across all layers.
type AppError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error

	// StatusCode carries the upstream HTTP status for REJECTED errors.
	StatusCode int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause attaches the underlying cause and returns the error.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Constructors

// NewValidation creates a request validation error.
func NewValidation(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Code: "invalid_request", Message: message}
}

// NewMissingCaseID reports a case-scoped call issued without a case id.
// This is a client bug and is never retried.
func NewMissingCaseID(operation string) *AppError {
	return &AppError{
		Type:    ErrorTypeMissingCaseID,
		Code:    "missing_case_id",
		Message: fmt.Sprintf("%s requires a case_id", operation),
	}
}

// NewNotFound creates a not-found error for the given resource.
func NewNotFound(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Code: "not_found", Message: message}
}

// NewDeadlineExceeded reports that an operation ran out of its time budget.
func NewDeadlineExceeded(operation string) *AppError {
	return &AppError{
		Type:    ErrorTypeDeadlineExceeded,
		Code:    "deadline_exceeded",
		Message: fmt.Sprintf("%s exceeded its deadline", operation),
	}
}

// NewBuildCancelled is delivered to single-flight followers when the leader's
// build was cancelled before completing.
func NewBuildCancelled() *AppError {
	return &AppError{
		Type:    ErrorTypeBuildCancelled,
		Code:    "build_cancelled",
		Message: "context build was cancelled by the leading request",
	}
}

// NewUnavailable reports an upstream that cannot be reached: the circuit
// breaker is open or every retry was exhausted.
func NewUnavailable(endpoint string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeUnavailable,
		Code:    "upstream_unavailable",
		Message: fmt.Sprintf("upstream %s is unavailable", endpoint),
		Cause:   cause,
	}
}

// NewRejected reports a 4xx response from an upstream. These indicate a bug
// on our side and are never retried.
func NewRejected(endpoint string, status int) *AppError {
	return &AppError{
		Type:       ErrorTypeRejected,
		Code:       "upstream_rejected",
		Message:    fmt.Sprintf("upstream %s rejected the request with status %d", endpoint, status),
		StatusCode: status,
	}
}

// NewInternal creates an internal error wrapping the cause.
func NewInternal(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Code: "internal", Message: message, Cause: cause}
}

// Predicates

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

func IsValidation(err error) bool       { return isType(err, ErrorTypeValidation) }
func IsMissingCaseID(err error) bool    { return isType(err, ErrorTypeMissingCaseID) }
func IsNotFound(err error) bool         { return isType(err, ErrorTypeNotFound) }
func IsDeadlineExceeded(err error) bool { return isType(err, ErrorTypeDeadlineExceeded) }
func IsBuildCancelled(err error) bool   { return isType(err, ErrorTypeBuildCancelled) }
func IsUnavailable(err error) bool      { return isType(err, ErrorTypeUnavailable) }
func IsRejected(err error) bool         { return isType(err, ErrorTypeRejected) }

// TypeOf returns the classified type of err, defaulting to INTERNAL for
// errors that did not originate from this package.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Wrap wraps an error with additional context, preserving its classification.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:       appErr.Type,
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Cause:      appErr.Cause,
			StatusCode: appErr.StatusCode,
		}
	}
	return &AppError{Type: ErrorTypeInternal, Code: "internal", Message: message, Cause: err}
}
