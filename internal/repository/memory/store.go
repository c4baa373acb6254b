// Package memory provides in-process implementations of the repository
// interfaces for local development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Muhadev/celm-backend/internal/domain"
)

type txKey struct{}

// memTx collects the undo steps of writes made inside a transaction.
type memTx struct {
	undo []func()
}

// Store backs the account directory and token stores. Transactions run one
// at a time; a failed transaction undoes its own writes in reverse order.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	refresh  map[string]*domain.RefreshToken
	resets   map[string]*domain.PasswordReset

	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		refresh:  make(map[string]*domain.RefreshToken),
		resets:   make(map[string]*domain.PasswordReset),
	}
}

// Accounts returns the account directory view of the store.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// RefreshTokens returns the refresh token view of the store.
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

// PasswordResets returns the password reset view of the store.
func (s *Store) PasswordResets() *PasswordResetRepository { return &PasswordResetRepository{s: s} }

// WithinTx implements repository.Transactor. Nested calls join the outer
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback registers undo for the transaction in ctx, if any. Callers hold
// s.mu.
func onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
