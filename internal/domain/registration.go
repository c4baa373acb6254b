package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Step identifies a page of the registration wizard.
type Step int

const (
	StepEmailInput Step = iota + 1
	StepPersonalInfo
	StepBusinessType
	StepShopDetails
	StepLocation
	// StepComplete means every step was submitted and the session can be
	// finalized.
	StepComplete
)

var stepNames = map[Step]string{
	StepEmailInput:   "email_input",
	StepPersonalInfo: "personal_info",
	StepBusinessType: "business_type",
	StepShopDetails:  "shop_details",
	StepLocation:     "location",
	StepComplete:     "complete",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// ParseStep accepts a step number ("3") or name ("business_type").
func ParseStep(v string) (Step, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if n, err := strconv.Atoi(v); err == nil {
		if s := Step(n); s >= StepEmailInput && s <= StepLocation {
			return s, nil
		}
		return 0, fmt.Errorf("unknown registration step %q", v)
	}
	for s, name := range stepNames {
		if name == v && s != StepComplete {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown registration step %q", v)
}

// EmailStep is the payload of StepEmailInput.
type EmailStep struct {
	Email string `json:"email"`
}

// PersonalInfoStep is the payload of StepPersonalInfo. The password is
// hashed before the payload is stored.
type PersonalInfoStep struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

type BusinessTypeStep struct {
	BusinessType BusinessType `json:"business_type"`
}

// ShopDetailsStep carries the shop identity. ShopHandle is resolved by the
// service from PreferredHandle or BusinessName.
type ShopDetailsStep struct {
	BusinessName    string `json:"business_name"`
	Description     string `json:"description"`
	PreferredHandle string `json:"preferred_handle,omitempty"`
	ShopHandle      string `json:"shop_handle"`
}

type LocationStep struct {
	Country   string `json:"country"`
	State     string `json:"state"`
	LocalArea string `json:"local_area"`
	Address   string `json:"address"`
}

// StepData accumulates the payloads submitted so far.
type StepData struct {
	Email        *EmailStep        `json:"email,omitempty"`
	PersonalInfo *PersonalInfoStep `json:"personal_info,omitempty"`
	BusinessType *BusinessTypeStep `json:"business_type,omitempty"`
	ShopDetails  *ShopDetailsStep  `json:"shop_details,omitempty"`
	Location     *LocationStep     `json:"location,omitempty"`
}

// RegistrationSession is the server-side state of one in-progress signup.
// CurrentStep is the next step the client must submit; it only moves
// forward. Version increases on every write and guards concurrent updates.
type RegistrationSession struct {
	ID                    string    `json:"id"`
	Token                 string    `json:"token"`
	Email                 string    `json:"email"`
	VerificationTokenHash string    `json:"verification_token_hash,omitempty"`
	EmailVerified         bool      `json:"email_verified"`
	OAuthProvider         string    `json:"oauth_provider,omitempty"`
	OAuthSubject          string    `json:"oauth_subject,omitempty"`
	CurrentStep           Step      `json:"current_step"`
	Steps                 StepData  `json:"steps"`
	Version               int64     `json:"version"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// NewRegistrationSession starts a session for email at StepEmailInput.
func NewRegistrationSession(email, token string, now time.Time, ttl time.Duration) *RegistrationSession {
	return &RegistrationSession{
		ID:          uuid.NewString(),
		Token:       token,
		Email:       email,
		CurrentStep: StepEmailInput,
		Steps:       StepData{Email: &EmailStep{Email: email}},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// IsOAuth reports whether the session was started from a provider identity.
func (s *RegistrationSession) IsOAuth() bool {
	return s.OAuthProvider != ""
}

func (s *RegistrationSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Advance moves CurrentStep past step. It never moves backwards.
func (s *RegistrationSession) Advance(step Step, now time.Time) {
	if next := step + 1; next > s.CurrentStep {
		s.CurrentStep = next
	}
	s.UpdatedAt = now
}

// StepValid reports whether the stored payload for step is complete.
func (s *RegistrationSession) StepValid(step Step) bool {
	d := s.Steps
	switch step {
	case StepEmailInput:
		return d.Email != nil && strings.TrimSpace(d.Email.Email) != ""
	case StepPersonalInfo:
		return d.PersonalInfo != nil &&
			strings.TrimSpace(d.PersonalInfo.FirstName) != "" &&
			strings.TrimSpace(d.PersonalInfo.LastName) != "" &&
			(d.PersonalInfo.PasswordHash != "" || s.IsOAuth())
	case StepBusinessType:
		return d.BusinessType != nil && d.BusinessType.BusinessType.IsValid()
	case StepShopDetails:
		return d.ShopDetails != nil &&
			strings.TrimSpace(d.ShopDetails.BusinessName) != "" &&
			strings.TrimSpace(d.ShopDetails.Description) != "" &&
			d.ShopDetails.ShopHandle != ""
	case StepLocation:
		return d.Location != nil &&
			strings.TrimSpace(d.Location.Country) != "" &&
			strings.TrimSpace(d.Location.State) != "" &&
			strings.TrimSpace(d.Location.LocalArea) != "" &&
			strings.TrimSpace(d.Location.Address) != ""
	}
	return false
}

// IncompleteSteps lists the steps whose payloads are missing or invalid.
func (s *RegistrationSession) IncompleteSteps() []Step {
	var missing []Step
	for step := StepEmailInput; step <= StepLocation; step++ {
		if !s.StepValid(step) {
			missing = append(missing, step)
		}
	}
	return missing
}

// NewAccount builds the account a fully completed session provisions.
func (s *RegistrationSession) NewAccount(shopHandle string, now time.Time) *Account {
	d := s.Steps
	return &Account{
		ID:                  uuid.NewString(),
		Email:               s.Email,
		PasswordHash:        d.PersonalInfo.PasswordHash,
		FirstName:           strings.TrimSpace(d.PersonalInfo.FirstName),
		LastName:            strings.TrimSpace(d.PersonalInfo.LastName),
		Phone:               strings.TrimSpace(d.PersonalInfo.Phone),
		BusinessType:        d.BusinessType.BusinessType,
		BusinessName:        strings.TrimSpace(d.ShopDetails.BusinessName),
		BusinessDescription: strings.TrimSpace(d.ShopDetails.Description),
		ShopHandle:          shopHandle,
		Country:             strings.TrimSpace(d.Location.Country),
		State:               strings.TrimSpace(d.Location.State),
		LocalArea:           strings.TrimSpace(d.Location.LocalArea),
		Address:             strings.TrimSpace(d.Location.Address),
		OAuthProvider:       s.OAuthProvider,
		OAuthSubject:        s.OAuthSubject,
		EmailVerified:       s.EmailVerified,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
