package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
	"github.com/Muhadev/celm-backend/pkg/logger"
	"github.com/Muhadev/celm-backend/pkg/validator"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]string{"handle": "ace-repairs"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"data":{"handle":"ace-repairs"}}`, rec.Body.String())
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "req-7"))

	WriteError(rec, req, apperrors.Conflict("an account already uses this email"), nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	assert.Equal(t, "an account already uses this email", resp.Error.Message)
	assert.Equal(t, "req-7", resp.Error.RequestID)
}

func TestWriteError_WrappedSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("load: %w", apperrors.ErrNotFound), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, rec).Error.Code)
}

func TestWriteError_InternalIsHiddenAndLogged(t *testing.T) {
	var logs bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&logs, nil))

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: password=secret"), fallback)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "an internal error occurred", resp.Error.Message)
	assert.Contains(t, logs.String(), "request failed")
}

func TestWriteError_Validation(t *testing.T) {
	type body struct {
		Email string `json:"email" validate:"required,email"`
	}
	err := validator.Validate(body{Email: "nope"})

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "email")
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email" validate:"required,email"`
	}

	t.Run("valid", func(t *testing.T) {
		var dst body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"new@biz.com"}`))
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &dst))
		assert.Equal(t, "new@biz.com", dst.Email)
	})

	t.Run("empty body", func(t *testing.T) {
		var dst body
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("unknown field", func(t *testing.T) {
		var dst body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","admin":true}`))
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("too large", func(t *testing.T) {
		var dst body
		big := `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(big)))
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
