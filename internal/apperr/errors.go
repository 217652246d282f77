// Package apperr defines the error kinds surfaced by the API and the
// envelope they are rendered into.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Error codes. Each code maps to exactly one HTTP status in HTTPStatus.
const (
	ETenantNotFound = "tenant_not_found"
	EAuthFailed     = "auth_failed"
	EForbidden      = "forbidden"
	ENotFound       = "not_found"
	EConflict       = "conflict"
	EInvalid        = "validation_error"
	EUnavailable    = "upstream_unavailable"
	EInternal       = "internal"
)

// Error is the error type shared by every layer of the service.
//
// Code drives the HTTP status and the "error" field of the envelope.
// Msg is the human readable detail returned to the client; it must not leak
// internals for EInternal errors. Op names the operation that failed and Err
// chains the underlying cause, both are only ever logged.
type Error struct {
	Code   string
	Msg    string
	Op     string
	Err    error
	Fields map[string]string
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("<" + e.Code + ">")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the first *Error in err's chain.
// Errors that are not *Error report EInternal; a nil error reports "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return EInternal
}

// ErrorMessage returns the client-facing detail of err.
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code == EInternal {
			return "internal server error"
		}
		return e.Msg
	}
	return "internal server error"
}

// ErrorFields returns the field level validation details of err, if any.
func ErrorFields(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case ETenantNotFound, EForbidden:
		return http.StatusForbidden
	case EAuthFailed:
		return http.StatusUnauthorized
	case ENotFound:
		return http.StatusNotFound
	case EConflict:
		return http.StatusConflict
	case EInvalid:
		return http.StatusBadRequest
	case EUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return ErrorCode(err) == code
}

func TenantNotFound(op string) *Error {
	return &Error{Code: ETenantNotFound, Op: op}
}

// AuthFailed is deliberately opaque; callers log the precise reason.
func AuthFailed(op string) *Error {
	return &Error{Code: EAuthFailed, Msg: "invalid credentials", Op: op}
}

func Forbidden(op, msg string) *Error {
	return &Error{Code: EForbidden, Msg: msg, Op: op}
}

func NotFound(op, msg string) *Error {
	return &Error{Code: ENotFound, Msg: msg, Op: op}
}

func Conflict(op, msg string, err error) *Error {
	return &Error{Code: EConflict, Msg: msg, Op: op, Err: err}
}

func Invalid(op, msg string, fields map[string]string) *Error {
	return &Error{Code: EInvalid, Msg: msg, Op: op, Fields: fields}
}

func Unavailable(op, msg string, err error) *Error {
	return &Error{Code: EUnavailable, Msg: msg, Op: op, Err: err}
}

func Internal(op string, err error) *Error {
	return &Error{Code: EInternal, Op: op, Err: err}
}
