package domain

import "time"

// TokenPair is the credential pair handed to a client after sign-in.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshToken is the persisted liveness record of an issued refresh token.
// Only the keyed hash of the token is stored.
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordReset is the single live reset record an account may have.
type PasswordReset struct {
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OAuthProfile is the identity asserted by an OAuth provider.
type OAuthProfile struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}
