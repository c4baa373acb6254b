package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates access from refresh tokens so one can never be
// replayed as the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var ErrWrongTokenType = errors.New("wrong token type")

// Claims is the payload of every token the service signs.
type Claims struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Type      TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTConfig configures signing and validation.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// JWTManager signs and validates HS256 tokens.
type JWTManager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

func NewJWTManager(cfg JWTConfig) *JWTManager {
	m := &JWTManager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	return m
}

// SetClock overrides the time source.
func (m *JWTManager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *JWTManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

// GenerateAccessToken signs a short-lived access token.
func (m *JWTManager) GenerateAccessToken(accountID, email string) (string, time.Time, error) {
	return m.sign(accountID, email, TokenTypeAccess, m.accessTTL)
}

// GenerateRefreshToken signs a long-lived refresh token. Each token carries a
// random jti, so two tokens issued in the same second still differ.
func (m *JWTManager) GenerateRefreshToken(accountID, email string) (string, time.Time, error) {
	return m.sign(accountID, email, TokenTypeRefresh, m.refreshTTL)
}

func (m *JWTManager) sign(accountID, email string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		AccountID: accountID,
		Email:     email,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies signature, issuer, audience, expiry and type.
func (m *JWTManager) ValidateAccessToken(token string) (*Claims, error) {
	return m.validate(token, TokenTypeAccess)
}

// ValidateRefreshToken is ValidateAccessToken for refresh tokens. It does not
// check whether the token is still live in the store.
func (m *JWTManager) ValidateRefreshToken(token string) (*Claims, error) {
	return m.validate(token, TokenTypeRefresh)
}

func (m *JWTManager) validate(token string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	parsed, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s token: %w", want, err)
	}
	if !parsed.Valid || claims.AccountID == "" {
		return nil, fmt.Errorf("invalid %s token claims", want)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.Type, want)
	}
	return claims, nil
}
