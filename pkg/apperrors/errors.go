// Package apperrors defines the error taxonomy shared by the authorization
// engine, the membership manager and the assignment guard.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and presentation
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindConfiguration  Kind = "configuration"
	KindUnexpected     Kind = "unexpected"
)

// GenericMessage is shown to callers in place of unexpected error details
const GenericMessage = "an unexpected error occurred"

// Error is a typed engine error carrying a human-readable reason
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil && e.Reason != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrUnexpected     = &Error{Kind: KindUnexpected}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Authentication reports a missing or invalid caller identity
func Authentication(format string, args ...interface{}) *Error {
	return newError(KindAuthentication, format, args...)
}

// Authorization reports a caller without standing for the operation
func Authorization(format string, args ...interface{}) *Error {
	return newError(KindAuthorization, format, args...)
}

// Validation reports malformed input
func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

// Conflict reports a uniqueness or seat-limit violation
func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

// NotFound reports a missing principal, membership or role
func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

// Configuration reports broken reference data such as an unknown role key.
// These are never retried.
func Configuration(format string, args ...interface{}) *Error {
	return newError(KindConfiguration, format, args...)
}

// Unexpected wraps any other failure
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Reason: GenericMessage, Err: err}
}

// KindOf returns the kind of err, or KindUnexpected for untyped errors
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// ReasonOf returns the user-facing reason for err. Unexpected errors never
// leak their cause.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnexpected {
		return appErr.Reason
	}
	return GenericMessage
}

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// HTTPStatus maps an error kind to a response status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case "":
		return http.StatusOK
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
