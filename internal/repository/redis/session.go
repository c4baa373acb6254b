package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Muhadev/celm-backend/internal/domain"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

const (
	tokenKeyPrefix = "regsession:token:"
	emailKeyPrefix = "regsession:email:"
)

// SessionRepository implements repository.SessionRepository using Redis.
// Each session is a JSON value keyed by its token, plus an email index
// pointing at the token. Both keys expire with the session.
type SessionRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionRepository creates a new Redis-backed registration session store.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new session. It fails with ErrAlreadyExists when a live
// session already holds the email.
func (r *SessionRepository) Create(ctx context.Context, s *domain.RegistrationSession) error {
	ttl, err := r.ttl(s)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal registration session: %w", err)
	}

	emailKey := emailKeyPrefix + s.Email
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, emailKey).Result()
		switch {
		case err == nil:
			n, err := tx.Exists(ctx, tokenKeyPrefix+existing).Result()
			if err != nil {
				return fmt.Errorf("redis exists registration session: %w", err)
			}
			if n > 0 {
				return apperrors.AlreadyExists("registration session", "email", s.Email)
			}
		case !errors.Is(err, redis.Nil):
			return fmt.Errorf("redis get registration session index: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tokenKeyPrefix+s.Token, data, ttl)
			pipe.Set(ctx, emailKey, s.Token, ttl)
			return nil
		})
		return err
	}, emailKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return apperrors.Conflict("registration session was created concurrently")
		}
		return err
	}
	return nil
}

// GetByToken retrieves a live session by its bearer token.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.RegistrationSession, error) {
	data, err := r.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get registration session: %w", err)
	}
	return r.decode(data)
}

// GetByEmail resolves the email index and then the session.
func (r *SessionRepository) GetByEmail(ctx context.Context, email string) (*domain.RegistrationSession, error) {
	token, err := r.client.Get(ctx, emailKeyPrefix+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get registration session index: %w", err)
	}
	return r.GetByToken(ctx, token)
}

// Update writes s when the stored version still equals s.Version. The write
// runs under WATCH, so a concurrent writer aborts it.
func (r *SessionRepository) Update(ctx context.Context, s *domain.RegistrationSession) error {
	ttl, err := r.ttl(s)
	if err != nil {
		return err
	}

	key := tokenKeyPrefix + s.Token
	next := *s
	next.Version++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal registration session: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("redis get registration session: %w", err)
		}
		current, err := r.decode(raw)
		if err != nil {
			return err
		}
		if current.Version != s.Version {
			return apperrors.Conflict("registration session was modified concurrently")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			pipe.Set(ctx, emailKeyPrefix+s.Email, s.Token, ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return apperrors.Conflict("registration session was modified concurrently")
		}
		return err
	}

	s.Version = next.Version
	return nil
}

// Delete removes the session and, when it still points at this session, the
// email index.
func (r *SessionRepository) Delete(ctx context.Context, s *domain.RegistrationSession) error {
	emailKey := emailKeyPrefix + s.Email
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, emailKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get registration session index: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, tokenKeyPrefix+s.Token)
			if owner == s.Token {
				pipe.Del(ctx, emailKey)
			}
			return nil
		})
		return err
	}, emailKey)
	if err != nil {
		return fmt.Errorf("redis delete registration session: %w", err)
	}
	return nil
}

func (r *SessionRepository) decode(data []byte) (*domain.RegistrationSession, error) {
	var s domain.RegistrationSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal registration session: %w", err)
	}
	if s.IsExpired(r.now()) {
		return nil, apperrors.ErrNotFound
	}
	return &s, nil
}

// ttl is the remaining lifetime of s, rounded up to a whole millisecond.
func (r *SessionRepository) ttl(s *domain.RegistrationSession) (time.Duration, error) {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return 0, apperrors.NotFoundMessage("registration session has expired")
	}
	return ttl.Truncate(time.Millisecond) + time.Millisecond, nil
}
