package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Muhadev/celm-backend/internal/domain"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	h := newHarness(t)
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	pair, err := h.tokens.Issue(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))
	assert.Equal(t, 1, h.store.RefreshTokens().Len())

	claims, err := h.tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.AccountID)
	assert.Equal(t, acc.Email, claims.Email)

	_, err = h.tokens.ValidateAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "refresh tokens are not access tokens")
	_, err = h.tokens.ValidateAccess("garbage")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestTokenService_RefreshRotates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	first, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)

	second, err := h.tokens.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, 1, h.store.RefreshTokens().Len(), "the consumed token is replaced, not kept")

	_, err = h.tokens.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "a refresh token is single use")

	_, err = h.tokens.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_RefreshConcurrentReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	pair, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.tokens.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrUnauthorized):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one caller may rotate a refresh token")
	assert.Equal(t, callers-1, rejected)
	assert.Equal(t, 1, h.store.RefreshTokens().Len())
}

func TestTokenService_RefreshRejectsAccessToken(t *testing.T) {
	h := newHarness(t)
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	pair, err := h.tokens.Issue(context.Background(), acc)
	require.NoError(t, err)

	_, err = h.tokens.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, 1, h.store.RefreshTokens().Len())
}

func TestTokenService_RefreshInactiveAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acc := &domain.Account{
		ID:           "acc-inactive",
		Email:        "gone@biz.com",
		BusinessType: domain.BusinessTypeOther,
		ShopHandle:   "gone",
		IsActive:     false,
	}
	require.NoError(t, h.store.Accounts().Create(ctx, acc))

	pair, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)

	_, err = h.tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, 1, h.store.RefreshTokens().Len(), "a rejected rotation rolls back the consume")
}

func TestTokenService_Revoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	pair, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)

	h.tokens.Revoke(ctx, pair.RefreshToken)
	_, err = h.tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Unknown and empty tokens are ignored.
	h.tokens.Revoke(ctx, pair.RefreshToken)
	h.tokens.Revoke(ctx, "")
}

func TestTokenService_RevokeAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)
	other := h.seedAccount(t, "other@biz.com", testPassword)

	p1, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)
	p2, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)
	p3, err := h.tokens.Issue(ctx, other)
	require.NoError(t, err)
	_, err = h.tokens.IssuePasswordReset(ctx, acc.Email)
	require.NoError(t, err)

	require.NoError(t, h.tokens.RevokeAll(ctx, acc.ID))

	_, err = h.tokens.Refresh(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = h.tokens.Refresh(ctx, p2.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = h.tokens.Refresh(ctx, p3.RefreshToken)
	assert.NoError(t, err, "other accounts keep their sessions")

	_, ok := h.store.PasswordResets().Get(acc.ID)
	assert.False(t, ok, "pending resets are revoked too")
}

func TestTokenService_PasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	session, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)

	token, err := h.tokens.IssuePasswordReset(ctx, "Owner@Biz.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, token, h.resetFor("owner@biz.com"))

	reset, ok := h.store.PasswordResets().Get(acc.ID)
	require.True(t, ok)
	assert.NotEqual(t, token, reset.TokenHash, "only the hash is stored")

	require.NoError(t, h.tokens.ConsumePasswordReset(ctx, token, "N3wPassword"))
	h.events.AssertCalled(t, "PublishAccountPasswordReset", mock.Anything, acc.ID, acc.Email)

	_, _, err = h.accounts.Login(ctx, acc.Email, "N3wPassword")
	assert.NoError(t, err)
	_, _, err = h.accounts.Login(ctx, acc.Email, testPassword)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = h.tokens.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "a reset signs out every session")

	err = h.tokens.ConsumePasswordReset(ctx, token, "An0therPass")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "a reset token is single use")
}

func TestTokenService_PasswordResetReissueReplacesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "owner@biz.com", testPassword)

	first, err := h.tokens.IssuePasswordReset(ctx, "owner@biz.com")
	require.NoError(t, err)
	second, err := h.tokens.IssuePasswordReset(ctx, "owner@biz.com")
	require.NoError(t, err)

	err = h.tokens.ConsumePasswordReset(ctx, first, "N3wPassword")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.NoError(t, h.tokens.ConsumePasswordReset(ctx, second, "N3wPassword"))
}

func TestTokenService_PasswordResetExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "owner@biz.com", testPassword)

	token, err := h.tokens.IssuePasswordReset(ctx, "owner@biz.com")
	require.NoError(t, err)

	h.tokens.now = func() time.Time { return time.Now().UTC().Add(DefaultResetTTL + time.Second) }
	err = h.tokens.ConsumePasswordReset(ctx, token, "N3wPassword")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTokenService_PasswordResetUnknownEmail(t *testing.T) {
	h := newHarness(t)

	token, err := h.tokens.IssuePasswordReset(context.Background(), "ghost@biz.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token, "unknown emails are indistinguishable to the caller")
	h.notifier.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything, mock.Anything)

	err = h.tokens.ConsumePasswordReset(context.Background(), token, "N3wPassword")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTokenService_ConsumePasswordResetValidatesPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	token, err := h.tokens.IssuePasswordReset(ctx, acc.Email)
	require.NoError(t, err)

	err = h.tokens.ConsumePasswordReset(ctx, token, "weak")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, ok := h.store.PasswordResets().Get(acc.ID)
	assert.True(t, ok, "a rejected password leaves the token usable")

	err = h.tokens.ConsumePasswordReset(ctx, "", "N3wPassword")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTokenService_PurgeExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.seedAccount(t, "owner@biz.com", testPassword)

	_, err := h.tokens.Issue(ctx, acc)
	require.NoError(t, err)
	_, err = h.tokens.IssuePasswordReset(ctx, acc.Email)
	require.NoError(t, err)

	refresh, resets, err := h.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, refresh)
	assert.Zero(t, resets)

	h.tokens.now = func() time.Time { return time.Now().UTC().Add(8 * 24 * time.Hour) }
	refresh, resets, err = h.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refresh)
	assert.Equal(t, int64(1), resets)
}
