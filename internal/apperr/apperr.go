// Package apperr defines the error kinds surfaced by the HTTP API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindTooManyRequests      Kind = "rate_limited"
	KindAdapterNotConfigured Kind = "adapter_not_configured"
	KindAdapterFailure       Kind = "adapter_failure"
	KindAdapterMalformed     Kind = "adapter_malformed_response"
	KindInternal             Kind = "internal_error"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindAdapterNotConfigured:
		return http.StatusServiceUnavailable
	case KindAdapterFailure, KindAdapterMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is an API-facing error. Message is safe to show to clients; Err is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns a copy carrying extra response data.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }

// NotFound 资源不存在或不属于当前用户
func NotFound(resource string) *Error {
	return New(KindNotFound, resource+" not found")
}

func Internal(err error) *Error {
	return Wrap(KindInternal, "Server error", err)
}

// From converts any error into an *Error, defaulting to internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
