package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/pkg/database"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

const accountColumns = `id, email, password_hash, first_name, last_name, phone,
		business_type, business_name, business_description, shop_handle,
		country, state, local_area, address,
		oauth_provider, oauth_subject, email_verified, is_active, created_at, updated_at`

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db     database.DBTX
	tracer database.QueryTracer
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db database.DBTX, tracer database.QueryTracer) *AccountRepository {
	return &AccountRepository{db: db, tracer: tracer}
}

// Create inserts a new account. A duplicate email or shop handle is reported
// as apperrors.ErrAlreadyExists.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (err error) {
	ctx, end := r.tracer.Trace(ctx, "accounts.create")
	defer func() { end(err) }()

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = database.Conn(ctx, r.db).Exec(ctx, query,
		a.ID,
		a.Email,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.Phone,
		string(a.BusinessType),
		a.BusinessName,
		a.BusinessDescription,
		a.ShopHandle,
		a.Country,
		a.State,
		a.LocalArea,
		a.Address,
		a.OAuthProvider,
		a.OAuthSubject,
		a.EmailVerified,
		a.IsActive,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case emailConstraint:
				return apperrors.AlreadyExists("account", "email", a.Email)
			case shopHandleConstraint:
				return apperrors.AlreadyExists("account", "shop_handle", a.ShopHandle)
			case oauthIdentityConstraint:
				return apperrors.AlreadyExists("account", "oauth identity", a.OAuthProvider)
			}
			return apperrors.Conflict("account conflicts with an existing record")
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.scanAccount(ctx, "accounts.get_by_id",
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail retrieves an account by its normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.scanAccount(ctx, "accounts.get_by_email",
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *AccountRepository) GetByShopHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return r.scanAccount(ctx, "accounts.get_by_shop_handle",
		`SELECT `+accountColumns+` FROM accounts WHERE shop_handle = $1`, handle)
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "accounts.exists_by_email",
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email)
}

func (r *AccountRepository) ExistsByShopHandle(ctx context.Context, handle string) (bool, error) {
	return r.exists(ctx, "accounts.exists_by_shop_handle",
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE shop_handle = $1)`, handle)
}

// UpdatePassword replaces the password hash of an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) (err error) {
	ctx, end := r.tracer.Trace(ctx, "accounts.update_password")
	defer func() { end(err) }()

	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`

	ct, err := database.Conn(ctx, r.db).Exec(ctx, query, passwordHash, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", accountID)
	}
	return nil
}

// LockHandleBase takes a transaction-scoped advisory lock keyed by base.
// Outside a transaction the lock would be released immediately, so it is
// skipped.
func (r *AccountRepository) LockHandleBase(ctx context.Context, base string) (err error) {
	tx, ok := database.TxFromContext(ctx)
	if !ok {
		return nil
	}

	ctx, end := r.tracer.Trace(ctx, "accounts.lock_handle_base")
	defer func() { end(err) }()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, base); err != nil {
		return fmt.Errorf("lock handle base %q: %w", base, err)
	}
	return nil
}

func (r *AccountRepository) exists(ctx context.Context, op, query string, arg string) (found bool, err error) {
	ctx, end := r.tracer.Trace(ctx, op)
	defer func() { end(err) }()

	if err = database.Conn(ctx, r.db).QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return found, nil
}

// scanAccount executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, op, query string, args ...any) (_ *domain.Account, err error) {
	ctx, end := r.tracer.Trace(ctx, op)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var (
		a            domain.Account
		businessType string
	)
	err = database.Conn(ctx, r.db).QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&a.Phone,
		&businessType,
		&a.BusinessName,
		&a.BusinessDescription,
		&a.ShopHandle,
		&a.Country,
		&a.State,
		&a.LocalArea,
		&a.Address,
		&a.OAuthProvider,
		&a.OAuthSubject,
		&a.EmailVerified,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.BusinessType = domain.BusinessType(businessType)
	return &a, nil
}
