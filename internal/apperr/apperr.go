// Package apperr defines the structured error taxonomy shared by services,
// repositories and the HTTP layer. Every failure surfaced to a client is an
// *Error carrying an HTTP status, a machine-usable code and a human message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeExpired      = "EXPIRED"
	CodeDelivery     = "DELIVERY_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

// Error is a structured application error with an HTTP status mapping.
type Error struct {
	Code    string
	Message string
	Status  int
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches field-level messages surfaced in the response envelope.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// Validation creates a 400 error for missing or malformed input.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// Conflict creates a 400 error for uniqueness violations. The client contract
// reports already-registered identities as a bad request, not 409.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: http.StatusBadRequest}
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

// Unauthorized creates a 401 error for bad, missing or expired credentials.
func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// Forbidden creates a 403 error for authenticated but disallowed actions.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}

// Expired creates a 400 error for a one-time code past its expiry.
func Expired(message string) *Error {
	return &Error{Code: CodeExpired, Message: message, Status: http.StatusBadRequest}
}

// Delivery creates a 500 error for an external channel failure.
func Delivery(message string, err error) *Error {
	return &Error{Code: CodeDelivery, Message: message, Status: http.StatusInternalServerError, Err: err}
}

// Internal creates a 500 error wrapping an unexpected failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError, Err: err}
}

// From extracts an *Error from err, wrapping unknown errors as Internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
