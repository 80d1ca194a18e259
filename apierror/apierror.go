// Package apierror defines the error taxonomy surfaced by the HTTP API.
package apierror

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeAuthRequired   Code = "auth_required"
	CodeInvalidSession Code = "invalid_session"
	CodeForbidden      Code = "forbidden"
	CodeNotFound       Code = "not_found"
	CodeExpired        Code = "expired"
	CodeRateLimited    Code = "rate_limited"
	CodeInternal       Code = "internal"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// HTTPStatus maps the error class to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeAuthRequired, CodeInvalidSession:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExpired:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// From coerces any error into an *Error, wrapping unknown faults as opaque
// internal errors so storage details never leak to callers.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return New(CodeInternal, "internal server error")
}
