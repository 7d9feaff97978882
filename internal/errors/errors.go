// Package errors defines the error taxonomy shared by the workflow services
// and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a service error.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeForbidden    Code = "FORBIDDEN"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidState Code = "INVALID_STATE"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// ServiceError is a structured error carrying an HTTP status mapping. All
// failures surfaced to callers are one of these.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair and returns the same error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation reports malformed or out-of-range input, caught before any
// storage access.
func Validation(msg string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: msg, HTTPStatus: http.StatusBadRequest}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...interface{}) *ServiceError {
	return Validation(fmt.Sprintf(format, args...))
}

// Forbidden reports a caller lacking the role or relationship an operation
// requires.
func Forbidden(msg string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: msg, HTTPStatus: http.StatusForbidden}
}

// Unauthorized reports a missing or unverifiable caller identity.
func Unauthorized(msg string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: msg, HTTPStatus: http.StatusUnauthorized}
}

// NotFound reports an identifier that does not resolve.
func NotFound(kind, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", kind, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// InvalidState reports an operation requested before its state-machine
// precondition holds.
func InvalidState(msg string) *ServiceError {
	return &ServiceError{Code: CodeInvalidState, Message: msg, HTTPStatus: http.StatusConflict}
}

// Internal wraps an unexpected failure. The cause is retained for logging but
// not serialized to callers.
func Internal(msg string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: msg, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError extracts a ServiceError from err, or nil if none is in the
// chain.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}
