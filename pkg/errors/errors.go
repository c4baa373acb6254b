// Package errors defines the error taxonomy shared by every layer of the
// onboarding service. Repositories return the sentinels; services return
// *AppError values that carry a stable code and an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Error codes exposed to API clients.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeAlreadyExists  = "ALREADY_EXISTS"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeConflict       = "CONFLICT"
	CodeInternal       = "INTERNAL_ERROR"
	CodeServiceUnavail = "SERVICE_UNAVAILABLE"
)

// AppError is an error with a client-facing code, message and status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// NotFound reports a missing resource identified by id.
func NotFound(resource, id string) *AppError {
	return newAppError(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id), http.StatusNotFound, ErrNotFound)
}

// NotFoundMessage reports a missing resource with a caller-supplied message.
func NotFoundMessage(message string) *AppError {
	return newAppError(CodeNotFound, message, http.StatusNotFound, ErrNotFound)
}

// AlreadyExists reports a uniqueness violation on field.
func AlreadyExists(resource, field, value string) *AppError {
	return newAppError(CodeAlreadyExists,
		fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		http.StatusConflict, ErrAlreadyExists)
}

// InvalidInput is the BadRequest kind: the request itself is malformed or
// not allowed in the current state.
func InvalidInput(message string) *AppError {
	return newAppError(CodeInvalidInput, message, http.StatusBadRequest, ErrInvalidInput)
}

// Conflict reports a state clash that a retry may resolve.
func Conflict(message string) *AppError {
	return newAppError(CodeConflict, message, http.StatusConflict, ErrConflict)
}

func Unauthorized(message string) *AppError {
	return newAppError(CodeUnauthorized, message, http.StatusUnauthorized, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return newAppError(CodeForbidden, message, http.StatusForbidden, ErrForbidden)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return newAppError(CodeInternal, "an internal error occurred", http.StatusInternalServerError, err)
}

// ServiceUnavailable reports an unreachable upstream dependency.
func ServiceUnavailable(message string) *AppError {
	return newAppError(CodeServiceUnavail, message, http.StatusServiceUnavailable, ErrServiceUnavail)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the AppError code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrServiceUnavail):
		return CodeServiceUnavail
	default:
		return CodeInternal
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict:
		return http.StatusConflict
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeServiceUnavail:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
