package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/pkg/database"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

const (
	uniqueViolation         = "23505"
	emailConstraint         = "accounts_email_key"
	shopHandleConstraint    = "accounts_shop_handle_key"
	oauthIdentityConstraint = "idx_accounts_oauth_identity"
)

// --- Refresh Token Repository ---

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db     database.DBTX
	tracer database.QueryTracer
}

func NewRefreshTokenRepository(db database.DBTX, tracer database.QueryTracer) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, tracer: tracer}
}

// Create stores the hash of a newly issued refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	ctx, end := r.tracer.Trace(ctx, "refresh_tokens.create")
	defer func() { end(err) }()

	query := `
		INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err = database.Conn(ctx, r.db).Exec(ctx, query, t.ID, t.AccountID, t.TokenHash, t.ExpiresAt, t.CreatedAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Consume deletes and returns the live record in a single statement, so two
// concurrent refreshes of the same token cannot both see it.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (_ *domain.RefreshToken, err error) {
	ctx, end := r.tracer.Trace(ctx, "refresh_tokens.consume")
	defer func() { end(err) }()

	query := `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING id, account_id, token_hash, expires_at, created_at`

	var t domain.RefreshToken
	err = database.Conn(ctx, r.db).QueryRow(ctx, query, tokenHash, now).Scan(
		&t.ID,
		&t.AccountID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (err error) {
	ctx, end := r.tracer.Trace(ctx, "refresh_tokens.delete_by_hash")
	defer func() { end(err) }()

	if _, err = database.Conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteByAccountID(ctx context.Context, accountID string) (err error) {
	ctx, end := r.tracer.Trace(ctx, "refresh_tokens.delete_by_account")
	defer func() { end(err) }()

	if _, err = database.Conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete account refresh tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	ctx, end := r.tracer.Trace(ctx, "refresh_tokens.delete_expired")
	defer func() { end(err) }()

	ct, err := database.Conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

// --- Password Reset Repository ---

// PasswordResetRepository implements repository.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	db     database.DBTX
	tracer database.QueryTracer
}

func NewPasswordResetRepository(db database.DBTX, tracer database.QueryTracer) *PasswordResetRepository {
	return &PasswordResetRepository{db: db, tracer: tracer}
}

// Upsert stores reset, replacing the account's previous record.
func (r *PasswordResetRepository) Upsert(ctx context.Context, p *domain.PasswordReset) (err error) {
	ctx, end := r.tracer.Trace(ctx, "password_resets.upsert")
	defer func() { end(err) }()

	query := `
		INSERT INTO password_resets (account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`

	if _, err = database.Conn(ctx, r.db).Exec(ctx, query, p.AccountID, p.TokenHash, p.ExpiresAt, p.CreatedAt); err != nil {
		return fmt.Errorf("upsert password reset: %w", err)
	}
	return nil
}

func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (_ *domain.PasswordReset, err error) {
	ctx, end := r.tracer.Trace(ctx, "password_resets.consume")
	defer func() { end(err) }()

	query := `
		DELETE FROM password_resets
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING account_id, token_hash, expires_at, created_at`

	var p domain.PasswordReset
	err = database.Conn(ctx, r.db).QueryRow(ctx, query, tokenHash, now).Scan(
		&p.AccountID,
		&p.TokenHash,
		&p.ExpiresAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("consume password reset: %w", err)
	}
	return &p, nil
}

func (r *PasswordResetRepository) DeleteByAccountID(ctx context.Context, accountID string) (err error) {
	ctx, end := r.tracer.Trace(ctx, "password_resets.delete_by_account")
	defer func() { end(err) }()

	if _, err = database.Conn(ctx, r.db).Exec(ctx, `DELETE FROM password_resets WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete password reset: %w", err)
	}
	return nil
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	ctx, end := r.tracer.Trace(ctx, "password_resets.delete_expired")
	defer func() { end(err) }()

	ct, err := database.Conn(ctx, r.db).Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired password resets: %w", err)
	}
	return ct.RowsAffected(), nil
}
