package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretBytes is the entropy of opaque tokens (session, verification, reset).
const SecretBytes = 32

// GenerateSecret returns SecretBytes of crypto randomness, base64url encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenHasher derives the at-rest form of bearer secrets. Keying the hash
// means a leaked table cannot be checked against guessed tokens offline.
type TokenHasher struct {
	key []byte
}

func NewTokenHasher(key string) *TokenHasher {
	return &TokenHasher{key: []byte(key)}
}

// Hash returns hex(HMAC-SHA256(key, token)).
func (h *TokenHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares token against a stored hash in constant time.
func (h *TokenHasher) Verify(token, hash string) bool {
	if hash == "" {
		return false
	}
	return hmac.Equal([]byte(h.Hash(token)), []byte(hash))
}

// PasswordHasher wraps bcrypt with a configurable cost.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (p *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. An empty hash never matches.
func (p *PasswordHasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
