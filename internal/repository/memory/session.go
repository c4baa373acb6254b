package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Muhadev/celm-backend/internal/domain"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

// SessionRepository implements repository.SessionRepository. Sessions are
// stored serialized so callers never share mutable state with the store.
type SessionRepository struct {
	mu      sync.Mutex
	byToken map[string][]byte
	byEmail map[string]string
	now     func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byToken: make(map[string][]byte),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used to hide expired sessions.
func (r *SessionRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *SessionRepository) Create(_ context.Context, s *domain.RegistrationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token, ok := r.byEmail[s.Email]; ok {
		if live, _ := r.load(token); live != nil {
			return apperrors.AlreadyExists("registration session", "email", s.Email)
		}
		r.drop(token)
	}
	if _, ok := r.byToken[s.Token]; ok {
		return apperrors.AlreadyExists("registration session", "token", s.Token)
	}
	return r.store(s)
}

func (r *SessionRepository) GetByToken(_ context.Context, token string) (*domain.RegistrationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(token)
}

func (r *SessionRepository) GetByEmail(_ context.Context, email string) (*domain.RegistrationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r.get(token)
}

func (r *SessionRepository) Update(_ context.Context, s *domain.RegistrationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.get(s.Token)
	if err != nil {
		return err
	}
	if current.Version != s.Version {
		return apperrors.Conflict("registration session was modified concurrently")
	}

	s.Version++
	if err := r.store(s); err != nil {
		s.Version--
		return err
	}
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, s *domain.RegistrationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(s.Token)
	return nil
}

// get returns the live session for token, purging it when expired.
func (r *SessionRepository) get(token string) (*domain.RegistrationSession, error) {
	s, err := r.load(token)
	if err != nil {
		return nil, err
	}
	if s == nil {
		r.drop(token)
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

// load decodes the session for token. It returns nil, nil for an expired
// session and ErrNotFound for a missing one.
func (r *SessionRepository) load(token string) (*domain.RegistrationSession, error) {
	raw, ok := r.byToken[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	var s domain.RegistrationSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode registration session: %w", err)
	}
	if s.IsExpired(r.now()) {
		return nil, nil
	}
	return &s, nil
}

func (r *SessionRepository) store(s *domain.RegistrationSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode registration session: %w", err)
	}
	r.byToken[s.Token] = raw
	r.byEmail[s.Email] = s.Token
	return nil
}

func (r *SessionRepository) drop(token string) {
	raw, ok := r.byToken[token]
	if !ok {
		return
	}
	delete(r.byToken, token)

	var s domain.RegistrationSession
	if json.Unmarshal(raw, &s) == nil && r.byEmail[s.Email] == token {
		delete(r.byEmail, s.Email)
	}
}
