package memory

import (
	"context"
	"time"

	"github.com/Muhadev/celm-backend/internal/domain"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository,
// keyed by token hash.
type RefreshTokenRepository struct {
	s *Store
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.refresh[t.TokenHash]; ok {
		return apperrors.AlreadyExists("refresh token", "hash", t.TokenHash)
	}
	cp := *t
	r.s.refresh[t.TokenHash] = &cp
	onRollback(ctx, func() { delete(r.s.refresh, t.TokenHash) })
	return nil
}

func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.refresh[tokenHash]
	if !ok || expired(t.ExpiresAt, now) {
		return nil, apperrors.ErrNotFound
	}
	delete(r.s.refresh, tokenHash)
	onRollback(ctx, func() { r.s.refresh[tokenHash] = t })

	cp := *t
	return &cp, nil
}

func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t, ok := r.s.refresh[tokenHash]; ok {
		delete(r.s.refresh, tokenHash)
		onRollback(ctx, func() { r.s.refresh[tokenHash] = t })
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for hash, t := range r.s.refresh {
		if t.AccountID == accountID {
			delete(r.s.refresh, hash)
			onRollback(ctx, func() { r.s.refresh[hash] = t })
		}
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for hash, t := range r.s.refresh {
		if expired(t.ExpiresAt, now) {
			delete(r.s.refresh, hash)
			onRollback(ctx, func() { r.s.refresh[hash] = t })
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored refresh records, expired ones included.
func (r *RefreshTokenRepository) Len() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.refresh)
}

// PasswordResetRepository implements repository.PasswordResetRepository,
// keyed by account ID.
type PasswordResetRepository struct {
	s *Store
}

func (r *PasswordResetRepository) Upsert(ctx context.Context, reset *domain.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, had := r.s.resets[reset.AccountID]
	cp := *reset
	r.s.resets[reset.AccountID] = &cp
	onRollback(ctx, func() {
		if had {
			r.s.resets[reset.AccountID] = prev
		} else {
			delete(r.s.resets, reset.AccountID)
		}
	})
	return nil
}

func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordReset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for accountID, reset := range r.s.resets {
		if reset.TokenHash != tokenHash {
			continue
		}
		if expired(reset.ExpiresAt, now) {
			break
		}
		delete(r.s.resets, accountID)
		onRollback(ctx, func() { r.s.resets[accountID] = reset })
		cp := *reset
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *PasswordResetRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if reset, ok := r.s.resets[accountID]; ok {
		delete(r.s.resets, accountID)
		onRollback(ctx, func() { r.s.resets[accountID] = reset })
	}
	return nil
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for accountID, reset := range r.s.resets {
		if expired(reset.ExpiresAt, now) {
			delete(r.s.resets, accountID)
			onRollback(ctx, func() { r.s.resets[accountID] = reset })
			n++
		}
	}
	return n, nil
}

// Get returns the live record for accountID, if any.
func (r *PasswordResetRepository) Get(accountID string) (*domain.PasswordReset, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	reset, ok := r.s.resets[accountID]
	if !ok {
		return nil, false
	}
	cp := *reset
	return &cp, true
}
