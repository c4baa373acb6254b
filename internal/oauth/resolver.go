// Package oauth resolves provider access tokens into verified identities.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Muhadev/celm-backend/internal/domain"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
	"github.com/Muhadev/celm-backend/pkg/httpclient"
)

const ProviderGoogle = "google"

// DefaultGoogleUserInfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Getter issues GET requests. *httpclient.CircuitBreakerClient satisfies it.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

// Resolver maps provider names to their userinfo endpoints.
type Resolver struct {
	client    Getter
	endpoints map[string]string
	logger    *slog.Logger
}

// NewResolver creates a resolver supporting Google at googleURL.
func NewResolver(client Getter, googleURL string, logger *slog.Logger) *Resolver {
	if googleURL == "" {
		googleURL = DefaultGoogleUserInfoURL
	}
	return &Resolver{
		client:    client,
		endpoints: map[string]string{ProviderGoogle: googleURL},
		logger:    logger,
	}
}

// userInfo is the OpenID Connect standard claims subset we read.
type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// Resolve exchanges accessToken for the provider's profile. Only profiles
// with a verified email are accepted.
func (r *Resolver) Resolve(ctx context.Context, provider, accessToken string) (*domain.OAuthProfile, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	endpoint, ok := r.endpoints[provider]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported oauth provider %q", provider))
	}
	if accessToken == "" {
		return nil, apperrors.InvalidInput("provider access token is required")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	header.Set("Accept", "application/json")

	resp, err := r.client.Get(ctx, endpoint, header)
	if err != nil {
		if httpclient.IsCircuitOpen(err) {
			return nil, apperrors.ServiceUnavailable(provider + " is temporarily unavailable")
		}
		r.logger.ErrorContext(ctx, "oauth userinfo request failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable(provider + " could not be reached")
	}
	if resp.StatusCode != http.StatusOK {
		upstreamErr := httpclient.ParseResponseError(resp, provider)
		r.logger.WarnContext(ctx, "oauth userinfo rejected",
			slog.String("provider", provider),
			slog.Int("status", resp.StatusCode),
			slog.String("error", upstreamErr.Error()),
		)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.ServiceUnavailable(provider + " is temporarily unavailable")
		}
		return nil, apperrors.Unauthorized(provider + " rejected the access token")
	}
	defer func() { _ = resp.Body.Close() }()

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode %s userinfo: %w", provider, err)
	}
	if info.Subject == "" || info.Email == "" {
		return nil, apperrors.Unauthorized(provider + " profile has no subject or email")
	}
	if !info.EmailVerified {
		return nil, apperrors.Unauthorized(provider + " email address is not verified")
	}

	return &domain.OAuthProfile{
		Provider:      provider,
		Subject:       info.Subject,
		Email:         domain.NormalizeEmail(info.Email),
		EmailVerified: true,
		GivenName:     strings.TrimSpace(info.GivenName),
		FamilyName:    strings.TrimSpace(info.FamilyName),
	}, nil
}
