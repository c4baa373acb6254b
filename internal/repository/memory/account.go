package memory

import (
	"context"
	"time"

	"github.com/Muhadev/celm-backend/internal/domain"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

// AccountRepository implements repository.AccountRepository.
type AccountRepository struct {
	s *Store
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[a.ID]; ok {
		return apperrors.AlreadyExists("account", "id", a.ID)
	}
	for _, existing := range r.s.accounts {
		if existing.Email == a.Email {
			return apperrors.AlreadyExists("account", "email", a.Email)
		}
		if existing.ShopHandle == a.ShopHandle {
			return apperrors.AlreadyExists("account", "shop_handle", a.ShopHandle)
		}
	}

	cp := *a
	r.s.accounts[a.ID] = &cp
	onRollback(ctx, func() { delete(r.s.accounts, a.ID) })
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ID == id })
}

func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == email })
}

func (r *AccountRepository) GetByShopHandle(_ context.Context, handle string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ShopHandle == handle })
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(func(a *domain.Account) bool { return a.Email == email })
}

func (r *AccountRepository) ExistsByShopHandle(ctx context.Context, handle string) (bool, error) {
	return r.exists(func(a *domain.Account) bool { return a.ShopHandle == handle })
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[accountID]
	if !ok {
		return apperrors.NotFound("account", accountID)
	}
	prevHash, prevUpdated := a.PasswordHash, a.UpdatedAt
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	onRollback(ctx, func() {
		a.PasswordHash = prevHash
		a.UpdatedAt = prevUpdated
	})
	return nil
}

// LockHandleBase is a no-op: memory transactions are already serialized.
func (r *AccountRepository) LockHandleBase(context.Context, string) error {
	return nil
}

func (r *AccountRepository) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *AccountRepository) exists(match func(*domain.Account) bool) (bool, error) {
	_, err := r.find(match)
	if err == nil {
		return true, nil
	}
	return false, nil
}
