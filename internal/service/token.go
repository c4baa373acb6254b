package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Muhadev/celm-backend/internal/auth"
	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/internal/notify"
	"github.com/Muhadev/celm-backend/internal/repository"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

// DefaultResetTTL is how long a password reset token stays usable.
const DefaultResetTTL = 15 * time.Minute

// EventPublisher receives account domain events. *event.Producer satisfies it.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, account *domain.Account) error
	PublishAccountPasswordReset(ctx context.Context, accountID, email string) error
}

// TokenService owns the credential lifecycle: issuing, validating, rotating
// and revoking token pairs, plus password reset tokens.
type TokenService struct {
	accounts  repository.AccountRepository
	refresh   repository.RefreshTokenRepository
	resets    repository.PasswordResetRepository
	tx        repository.Transactor
	jwt       *auth.JWTManager
	hasher    *auth.TokenHasher
	passwords *auth.PasswordHasher
	notifier  notify.Dispatcher
	events    EventPublisher
	resetTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(
	accounts repository.AccountRepository,
	refresh repository.RefreshTokenRepository,
	resets repository.PasswordResetRepository,
	tx repository.Transactor,
	jwt *auth.JWTManager,
	hasher *auth.TokenHasher,
	passwords *auth.PasswordHasher,
	notifier notify.Dispatcher,
	events EventPublisher,
	resetTTL time.Duration,
	logger *slog.Logger,
) *TokenService {
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &TokenService{
		accounts:  accounts,
		refresh:   refresh,
		resets:    resets,
		tx:        tx,
		jwt:       jwt,
		hasher:    hasher,
		passwords: passwords,
		notifier:  notifier,
		events:    events,
		resetTTL:  resetTTL,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Issue signs a new token pair for account and records the refresh token as
// live. Inside a transaction the record commits with it.
func (s *TokenService) Issue(ctx context.Context, account *domain.Account) (*domain.TokenPair, error) {
	access, accessExp, err := s.jwt.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, refreshExp, err := s.jwt.GenerateRefreshToken(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := &domain.RefreshToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: s.hasher.Hash(refresh),
		ExpiresAt: refreshExp,
		CreatedAt: s.now(),
	}
	if err := s.refresh.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	tokensIssued.Inc()
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.jwt.AccessTTL().Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess checks an access token and returns its claims.
func (s *TokenService) ValidateAccess(token string) (*auth.Claims, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired access token")
	}
	return claims, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued in the same transaction. A token can be used once; a replay
// fails with Unauthorized.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		tokenRefreshes.WithLabelValues("invalid").Inc()
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	var pair *domain.TokenPair
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		record, err := s.refresh.Consume(ctx, s.hasher.Hash(refreshToken), s.now())
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return errTokenNotLive
			}
			return fmt.Errorf("consume refresh token: %w", err)
		}
		if record.AccountID != claims.AccountID {
			return errTokenNotLive
		}

		account, err := s.accounts.GetByID(ctx, record.AccountID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return errTokenNotLive
			}
			return fmt.Errorf("get account: %w", err)
		}
		if !account.IsActive {
			return apperrors.Unauthorized("account is deactivated")
		}

		pair, err = s.Issue(ctx, account)
		return err
	})
	if err != nil {
		if errors.Is(err, errTokenNotLive) {
			tokenRefreshes.WithLabelValues("rejected").Inc()
			s.logger.WarnContext(ctx, "refresh token rejected",
				slog.String("account_id", claims.AccountID),
			)
			return nil, apperrors.Unauthorized("refresh token has been revoked or already used")
		}
		tokenRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	tokenRefreshes.WithLabelValues("rotated").Inc()
	return pair, nil
}

var errTokenNotLive = errors.New("refresh token is not live")

// Revoke invalidates one refresh token. It never fails: unknown tokens and
// storage errors are logged and ignored.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.refresh.DeleteByHash(ctx, s.hasher.Hash(refreshToken)); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke refresh token",
			slog.String("error", err.Error()),
		)
	}
}

// RevokeAll signs the account out everywhere: every refresh token and any
// pending password reset are deleted.
func (s *TokenService) RevokeAll(ctx context.Context, accountID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.refresh.DeleteByAccountID(ctx, accountID); err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}
		if err := s.resets.DeleteByAccountID(ctx, accountID); err != nil {
			return fmt.Errorf("revoke password reset: %w", err)
		}
		return nil
	})
}

// IssuePasswordReset creates a reset token for email and dispatches it. The
// result looks the same whether or not the email is registered: for unknown
// addresses a token is generated but nothing is stored or sent.
func (s *TokenService) IssuePasswordReset(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)
	token, err := auth.GenerateSecret()
	if err != nil {
		return "", err
	}
	passwordResets.WithLabelValues("requested").Inc()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return token, nil
		}
		return "", fmt.Errorf("get account: %w", err)
	}
	if !account.IsActive {
		return token, nil
	}

	now := s.now()
	reset := &domain.PasswordReset{
		AccountID: account.ID,
		TokenHash: s.hasher.Hash(token),
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.resets.Upsert(ctx, reset); err != nil {
		return "", fmt.Errorf("store password reset: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, account.Email, token); err != nil {
		notificationFailures.WithLabelValues("password_reset").Inc()
		s.logger.ErrorContext(ctx, "failed to send password reset email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset issued", slog.String("account_id", account.ID))
	return token, nil
}

// ConsumePasswordReset sets a new password using a reset token. The token is
// single use, and every session of the account is revoked with it.
func (s *TokenService) ConsumePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return apperrors.InvalidInput("reset token is required")
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}

	var account *domain.Account
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reset, err := s.resets.Consume(ctx, s.hasher.Hash(resetToken), s.now())
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return apperrors.InvalidInput("invalid or expired reset token")
			}
			return fmt.Errorf("consume password reset: %w", err)
		}

		account, err = s.accounts.GetByID(ctx, reset.AccountID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return s.RevokeAll(ctx, account.ID)
	})
	if err != nil {
		return err
	}
	passwordResets.WithLabelValues("completed").Inc()

	if err := s.events.PublishAccountPasswordReset(ctx, account.ID, account.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.password_reset event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.String("account_id", account.ID))
	return nil
}

// PurgeExpired deletes expired refresh and reset records.
func (s *TokenService) PurgeExpired(ctx context.Context) (refresh, resets int64, err error) {
	now := s.now()
	if refresh, err = s.refresh.DeleteExpired(ctx, now); err != nil {
		return 0, 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	if resets, err = s.resets.DeleteExpired(ctx, now); err != nil {
		return refresh, 0, fmt.Errorf("purge password resets: %w", err)
	}
	return refresh, resets, nil
}
