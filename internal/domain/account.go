package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Account is a provisioned merchant: the owner's identity plus the shop it
// runs. It is created exactly once, by finalizing a registration session.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone,omitempty"`

	BusinessType        BusinessType `json:"business_type"`
	BusinessName        string       `json:"business_name"`
	BusinessDescription string       `json:"business_description"`
	ShopHandle          string       `json:"shop_handle"`

	Country   string `json:"country"`
	State     string `json:"state"`
	LocalArea string `json:"local_area"`
	Address   string `json:"address"`

	OAuthProvider string `json:"oauth_provider,omitempty"`
	OAuthSubject  string `json:"-"`

	EmailVerified bool      `json:"email_verified"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// NormalizeEmail trims and lower-cases an address. Email identity is
// case-insensitive throughout the service.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether email is a bare RFC 5322 address with a
// dotted domain.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	return strings.Contains(domain, ".")
}
