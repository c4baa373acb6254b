package repository

import (
	"context"
	"time"

	"github.com/Muhadev/celm-backend/internal/domain"
)

// AccountRepository is the account directory. Email and shop handle are
// unique; Create reports a clash as apperrors.ErrAlreadyExists.
type AccountRepository interface {
	// Create inserts a new account.
	Create(ctx context.Context, account *domain.Account) error

	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByShopHandle(ctx context.Context, handle string) (*domain.Account, error)

	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByShopHandle(ctx context.Context, handle string) (bool, error)

	// UpdatePassword replaces the password hash of an account.
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error

	// LockHandleBase serializes handle resolution for base until the
	// surrounding transaction ends. It is a no-op outside a transaction.
	LockHandleBase(ctx context.Context, base string) error
}

// RefreshTokenRepository tracks which refresh tokens are still live.
type RefreshTokenRepository interface {
	// Create stores the hash of a newly issued refresh token.
	Create(ctx context.Context, token *domain.RefreshToken) error

	// Consume atomically deletes and returns the live, unexpired record for
	// tokenHash. Exactly one concurrent caller can succeed; the rest get
	// apperrors.ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)

	DeleteByHash(ctx context.Context, tokenHash string) error
	DeleteByAccountID(ctx context.Context, accountID string) error

	// DeleteExpired removes records that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PasswordResetRepository holds at most one live reset record per account.
type PasswordResetRepository interface {
	// Upsert stores reset, replacing any previous record for the account.
	Upsert(ctx context.Context, reset *domain.PasswordReset) error

	// Consume atomically deletes and returns the unexpired record matching
	// tokenHash, or apperrors.ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordReset, error)

	DeleteByAccountID(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Transactor runs fn so that every repository call made with the ctx it
// receives commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionRepository stores in-progress registration sessions. Records past
// ExpiresAt are never returned.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.RegistrationSession) error

	GetByToken(ctx context.Context, token string) (*domain.RegistrationSession, error)
	GetByEmail(ctx context.Context, email string) (*domain.RegistrationSession, error)

	// Update writes session if the stored version equals session.Version and
	// then increments session.Version. A stale version yields
	// apperrors.ErrConflict.
	Update(ctx context.Context, session *domain.RegistrationSession) error

	// Delete removes the session and its email index. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, session *domain.RegistrationSession) error
}
