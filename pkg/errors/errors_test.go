package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- AppError ---

func TestAppError_ErrorString(t *testing.T) {
	withInner := &AppError{Code: CodeInternal, Message: "boom", Err: fmt.Errorf("db down")}
	assert.Equal(t, "INTERNAL_ERROR: boom: db down", withInner.Error())

	bare := &AppError{Code: CodeNotFound, Message: "session not found"}
	assert.Equal(t, "NOT_FOUND: session not found", bare.Error())
}

func TestConstructors_StatusAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		status   int
		code     string
		sentinel error
	}{
		{"not found", NotFound("account", "42"), http.StatusNotFound, CodeNotFound, ErrNotFound},
		{"not found message", NotFoundMessage("registration session not found"), http.StatusNotFound, CodeNotFound, ErrNotFound},
		{"already exists", AlreadyExists("account", "email", "a@b.c"), http.StatusConflict, CodeAlreadyExists, ErrAlreadyExists},
		{"invalid input", InvalidInput("bad step"), http.StatusBadRequest, CodeInvalidInput, ErrInvalidInput},
		{"conflict", Conflict("session changed"), http.StatusConflict, CodeConflict, ErrConflict},
		{"unauthorized", Unauthorized("nope"), http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden, CodeForbidden, ErrForbidden},
		{"unavailable", ServiceUnavailable("provider down"), http.StatusServiceUnavailable, CodeServiceUnavail, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestAlreadyExists_Message(t *testing.T) {
	err := AlreadyExists("account", "shop_handle", "ace-repairs")
	assert.Equal(t, `account with shop_handle "ace-repairs" already exists`, err.Message)
}

func TestInternal_HidesCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Internal(cause)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.True(t, errors.Is(err, cause))
}

// --- Classification ---

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict("x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("get: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("insert: %w", ErrAlreadyExists)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrInvalidInput))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("unknown")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeUnauthorized, CodeOf(Unauthorized("bad token")))
	assert.Equal(t, CodeConflict, CodeOf(fmt.Errorf("wrapped: %w", ErrConflict)))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "load account")
	assert.Equal(t, "load account: resource not found", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
}
