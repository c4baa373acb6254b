package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager(JWTConfig{
		Secret:     "test-secret-key-for-testing-only",
		Issuer:     "celm-test",
		Audience:   "celm-clients",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
}

// ---------------------------------------------------------------------------
// JWT
// ---------------------------------------------------------------------------

func TestJWTManager_AccessTokenRoundTrip(t *testing.T) {
	m := newTestJWTManager()

	token, exp, err := m.GenerateAccessToken("acc-1", "new@biz.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "new@biz.com", claims.Email)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTManager_TokensAreUnique(t *testing.T) {
	m := newTestJWTManager()
	a, _, err := m.GenerateRefreshToken("acc-1", "new@biz.com")
	require.NoError(t, err)
	b, _, err := m.GenerateRefreshToken("acc-1", "new@biz.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJWTManager_RejectsWrongType(t *testing.T) {
	m := newTestJWTManager()

	refresh, _, err := m.GenerateRefreshToken("acc-1", "new@biz.com")
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	access, _, err := m.GenerateAccessToken("acc-1", "new@biz.com")
	require.NoError(t, err)
	_, err = m.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := newTestJWTManager()
	issued := time.Now().Add(-time.Hour)
	m.SetClock(func() time.Time { return issued })

	token, _, err := m.GenerateAccessToken("acc-1", "new@biz.com")
	require.NoError(t, err)

	m.SetClock(time.Now)
	_, err = m.ValidateAccessToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	other := NewJWTManager(JWTConfig{
		Secret: "another-secret", Issuer: "celm-test", Audience: "celm-clients",
		AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	token, _, err := other.GenerateAccessToken("acc-1", "new@biz.com")
	require.NoError(t, err)

	_, err = newTestJWTManager().ValidateAccessToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTManager_RejectsIssuerAndAudienceMismatch(t *testing.T) {
	m := newTestJWTManager()

	wrongIssuer := NewJWTManager(JWTConfig{
		Secret: "test-secret-key-for-testing-only", Issuer: "someone-else", Audience: "celm-clients",
		AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	token, _, err := wrongIssuer.GenerateAccessToken("acc-1", "a@b.co")
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	wrongAudience := NewJWTManager(JWTConfig{
		Secret: "test-secret-key-for-testing-only", Issuer: "celm-test", Audience: "admin",
		AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	token, _, err = wrongAudience.GenerateAccessToken("acc-1", "a@b.co")
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
}

func TestJWTManager_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{AccountID: "acc-1", Type: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "celm-test",
		Audience:  jwt.ClaimStrings{"celm-clients"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestJWTManager().ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsGarbage(t *testing.T) {
	_, err := newTestJWTManager().ValidateAccessToken("not.a.jwt")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Secrets
// ---------------------------------------------------------------------------

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43, "32 bytes base64url without padding")
	assert.False(t, strings.ContainsAny(a, "+/="))
}

func TestTokenHasher(t *testing.T) {
	h := NewTokenHasher("pepper")
	hash := h.Hash("raw-token")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, h.Hash("raw-token"))
	assert.NotEqual(t, hash, NewTokenHasher("other").Hash("raw-token"))
	assert.True(t, h.Verify("raw-token", hash))
	assert.False(t, h.Verify("other-token", hash))
	assert.False(t, h.Verify("raw-token", ""))
}

// ---------------------------------------------------------------------------
// Passwords
// ---------------------------------------------------------------------------

func TestPasswordHasher(t *testing.T) {
	p := NewPasswordHasher(bcrypt.MinCost)

	hash, err := p.Hash("Str0ngPass")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ngPass", hash)

	assert.True(t, p.Compare(hash, "Str0ngPass"))
	assert.False(t, p.Compare(hash, "str0ngpass"))
	assert.False(t, p.Compare("", "Str0ngPass"))
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(99).cost)
}
