package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Muhadev/celm-backend/internal/auth"
	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/internal/repository"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

const invalidCredentials = "invalid email or password"

// ProfileResolver turns a provider access token into a verified identity.
// *oauth.Resolver satisfies it.
type ProfileResolver interface {
	Resolve(ctx context.Context, provider, accessToken string) (*domain.OAuthProfile, error)
}

// AccountService implements sign-in and account self-service for accounts
// that already exist.
type AccountService struct {
	accounts  repository.AccountRepository
	tx        repository.Transactor
	tokens    *TokenService
	passwords *auth.PasswordHasher
	profiles  ProfileResolver
	logger    *slog.Logger

	// dummyHash is compared against when the email is unknown, so a miss
	// costs the same bcrypt work as a wrong password.
	dummyHash string
}

const dummyPassword = "dummy-password-for-timing"

// NewAccountService creates a new account service.
func NewAccountService(
	accounts repository.AccountRepository,
	tx repository.Transactor,
	tokens *TokenService,
	passwords *auth.PasswordHasher,
	profiles ProfileResolver,
	logger *slog.Logger,
) (*AccountService, error) {
	dummy, err := passwords.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	return &AccountService{
		accounts:  accounts,
		tx:        tx,
		tokens:    tokens,
		passwords: passwords,
		profiles:  profiles,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Login authenticates with email and password. Unknown email, missing
// password credential, wrong password and inactive account are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, *domain.TokenPair, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, apperrors.InvalidInput("email and password are required")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("get account: %w", err)
		}
		s.passwords.Compare(s.dummyHash, password)
		loginAttempts.WithLabelValues("password", "failed").Inc()
		return nil, nil, apperrors.Unauthorized(invalidCredentials)
	}

	// OAuth-only accounts still pay for a bcrypt comparison.
	hash := account.PasswordHash
	if !account.HasPassword() {
		hash = s.dummyHash
	}
	matched := s.passwords.Compare(hash, password)
	if !account.HasPassword() || !matched || !account.IsActive {
		loginAttempts.WithLabelValues("password", "failed").Inc()
		return nil, nil, apperrors.Unauthorized(invalidCredentials)
	}

	tokens, err := s.tokens.Issue(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("issue tokens: %w", err)
	}

	loginAttempts.WithLabelValues("password", "succeeded").Inc()
	s.logger.InfoContext(ctx, "account logged in", slog.String("account_id", account.ID))
	return account, tokens, nil
}

// OAuthLogin signs in an existing account with a provider access token.
// Accounts are only ever created through registration, so an unknown email
// is NotFound.
func (s *AccountService) OAuthLogin(ctx context.Context, provider, accessToken string) (*domain.Account, *domain.TokenPair, error) {
	profile, err := s.profiles.Resolve(ctx, provider, accessToken)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, profile.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			loginAttempts.WithLabelValues("oauth", "unregistered").Inc()
			return nil, nil, apperrors.NotFoundMessage("no account is registered for this email; complete registration first")
		}
		return nil, nil, fmt.Errorf("get account: %w", err)
	}
	if !account.IsActive {
		loginAttempts.WithLabelValues("oauth", "failed").Inc()
		return nil, nil, apperrors.Unauthorized("account is deactivated")
	}

	tokens, err := s.tokens.Issue(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("issue tokens: %w", err)
	}

	loginAttempts.WithLabelValues("oauth", "succeeded").Inc()
	s.logger.InfoContext(ctx, "account logged in",
		slog.String("account_id", account.ID),
		slog.String("provider", profile.Provider),
	)
	return account, tokens, nil
}

// Logout revokes one refresh token. It always succeeds.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) {
	s.tokens.Revoke(ctx, refreshToken)
}

// LogoutAll revokes every refresh token of the account.
func (s *AccountService) LogoutAll(ctx context.Context, accountID string) error {
	if err := s.tokens.RevokeAll(ctx, accountID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account logged out everywhere", slog.String("account_id", accountID))
	return nil
}

// ChangePassword verifies the current password, sets the new one and revokes
// all sessions.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasPassword() {
		return apperrors.InvalidInput("account has no password; use password reset to set one")
	}
	if !s.passwords.Compare(account.PasswordHash, currentPassword) {
		return apperrors.Unauthorized("current password is incorrect")
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return s.tokens.RevokeAll(ctx, accountID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("account_id", accountID))
	return nil
}

// GetProfile returns the account with the given ID.
func (s *AccountService) GetProfile(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("account", accountID)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}
