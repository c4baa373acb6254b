package oauth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
	"github.com/Muhadev/celm-backend/pkg/httpclient"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	client := httpclient.NewCircuitBreakerClient(
		httpclient.NewWithHTTPClient(srv.Client(), cfg),
		httpclient.DefaultCircuitBreakerConfig("oauth-test-"+t.Name()),
		logger,
	)
	return NewResolver(client, srv.URL, logger)
}

func TestResolver_Google(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer good-token", req.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"sub":"g-123","email":"New@Biz.com","email_verified":true,"given_name":"Ada","family_name":"Obi"}`)
	})

	p, err := r.Resolve(context.Background(), "Google", "good-token")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, p.Provider)
	assert.Equal(t, "g-123", p.Subject)
	assert.Equal(t, "new@biz.com", p.Email)
	assert.Equal(t, "Ada", p.GivenName)
	assert.Equal(t, "Obi", p.FamilyName)
}

func TestResolver_UnverifiedEmail(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"sub":"g-123","email":"new@biz.com","email_verified":false}`)
	})

	_, err := r.Resolve(context.Background(), "google", "tok")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestResolver_InvalidToken(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_token","error_description":"Invalid Credentials"}`)
	})

	_, err := r.Resolve(context.Background(), "google", "bad")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "google rejected the access token", appErr.Message)
	assert.NotContains(t, err.Error(), "Invalid Credentials")
}

func TestResolver_UpstreamBodyNotReturned(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound} {
		r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":"internal-trace-id-0xdeadbeef"}`)
		})

		_, err := r.Resolve(context.Background(), "google", "tok")
		require.ErrorIs(t, err, apperrors.ErrUnauthorized, "status %d", status)
		assert.NotContains(t, err.Error(), "deadbeef", "status %d", status)
	}
}

func TestResolver_UpstreamDown(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := r.Resolve(context.Background(), "google", "tok")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestResolver_UnsupportedProvider(t *testing.T) {
	r := newTestResolver(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := r.Resolve(context.Background(), "myspace", "tok")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = r.Resolve(context.Background(), "google", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
