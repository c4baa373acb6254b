package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Muhadev/celm-backend/internal/auth"
	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/internal/handle"
	"github.com/Muhadev/celm-backend/internal/repository"
	"github.com/Muhadev/celm-backend/internal/repository/memory"
)

// --- Mock Dispatcher ---

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) SendVerification(ctx context.Context, email, verificationToken, sessionToken string) error {
	args := m.Called(ctx, email, verificationToken, sessionToken)
	return args.Error(0)
}

func (m *mockDispatcher) SendWelcome(ctx context.Context, email, firstName string) error {
	args := m.Called(ctx, email, firstName)
	return args.Error(0)
}

func (m *mockDispatcher) SendPasswordReset(ctx context.Context, email, resetToken string) error {
	args := m.Called(ctx, email, resetToken)
	return args.Error(0)
}

// --- Mock Event Publisher ---

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishAccountPasswordReset(ctx context.Context, accountID, email string) error {
	args := m.Called(ctx, accountID, email)
	return args.Error(0)
}

// --- Mock Profile Resolver ---

type mockProfileResolver struct {
	mock.Mock
}

func (m *mockProfileResolver) Resolve(ctx context.Context, provider, accessToken string) (*domain.OAuthProfile, error) {
	args := m.Called(ctx, provider, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OAuthProfile), args.Error(1)
}

// --- Harness ---

const testPassword = "Str0ngPass"

// harness wires the three services over the in-memory store.
type harness struct {
	store        *memory.Store
	sessions     *memory.SessionRepository
	notifier     *mockDispatcher
	events       *mockEventPublisher
	profiles     *mockProfileResolver
	hasher       *auth.TokenHasher
	passwords    *auth.PasswordHasher
	tokens       *TokenService
	accounts     *AccountService
	registration *RegistrationService

	mu            sync.Mutex
	verifications map[string]string // email -> last verification token
	resets        map[string]string // email -> last reset token
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:         memory.NewStore(),
		sessions:      memory.NewSessionRepository(),
		notifier:      new(mockDispatcher),
		events:        new(mockEventPublisher),
		profiles:      new(mockProfileResolver),
		hasher:        auth.NewTokenHasher("test-hmac-key"),
		passwords:     auth.NewPasswordHasher(bcrypt.MinCost),
		verifications: make(map[string]string),
		resets:        make(map[string]string),
	}

	h.notifier.On("SendVerification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.verifications[args.String(1)] = args.String(2)
		}).Return(nil).Maybe()
	h.notifier.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.resets[args.String(1)] = args.String(2)
		}).Return(nil).Maybe()
	h.notifier.On("SendWelcome", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.events.On("PublishAccountRegistered", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.events.On("PublishAccountPasswordReset", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:     "test-jwt-secret",
		Issuer:     "celm-test",
		Audience:   "celm-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})

	accountRepo := h.store.Accounts()
	h.tokens = NewTokenService(
		accountRepo,
		h.store.RefreshTokens(),
		h.store.PasswordResets(),
		h.store,
		jwtManager,
		h.hasher,
		h.passwords,
		h.notifier,
		h.events,
		DefaultResetTTL,
		logger,
	)

	var err error
	h.accounts, err = NewAccountService(accountRepo, h.store, h.tokens, h.passwords, h.profiles, logger)
	require.NoError(t, err)

	h.registration = h.newRegistration(h.sessions, logger)
	return h
}

func (h *harness) newRegistration(sessions repository.SessionRepository, logger *slog.Logger) *RegistrationService {
	accountRepo := h.store.Accounts()
	return NewRegistrationService(RegistrationDeps{
		Sessions:  sessions,
		Accounts:  accountRepo,
		Tx:        h.store,
		Tokens:    h.tokens,
		Handles:   handle.NewGenerator(accountRepo),
		Hasher:    h.hasher,
		Passwords: h.passwords,
		Notifier:  h.notifier,
		Events:    h.events,
		Profiles:  h.profiles,
		Logger:    logger,
	})
}

func (h *harness) verificationFor(email string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifications[email]
}

func (h *harness) resetFor(email string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets[email]
}

// seedAccount inserts an active account with a password directly into the
// store.
func (h *harness) seedAccount(t *testing.T, email, password string) *domain.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := &domain.Account{
		ID:            "acc-" + email,
		Email:         email,
		FirstName:     "Ada",
		LastName:      "Obi",
		BusinessType:  domain.BusinessTypeRetail,
		BusinessName:  "Seeded Shop",
		ShopHandle:    handle.Normalize("seeded " + email),
		EmailVerified: true,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if password != "" {
		hash, err := h.passwords.Hash(password)
		require.NoError(t, err)
		acc.PasswordHash = hash
	}
	require.NoError(t, h.store.Accounts().Create(context.Background(), acc))
	return acc
}

// completeSession drives an email signup through every step and returns the
// session token, ready to finalize.
func (h *harness) completeSession(t *testing.T, email, businessName string) string {
	t.Helper()
	ctx := context.Background()

	started, err := h.registration.StartSession(ctx, email)
	require.NoError(t, err)
	token := started.Session.Token

	_, err = h.registration.VerifyEmail(ctx, token, h.verificationFor(email))
	require.NoError(t, err)

	steps := []struct {
		step  domain.Step
		input StepInput
	}{
		{domain.StepPersonalInfo, StepInput{PersonalInfo: &PersonalInfoInput{
			FirstName: "Ada", LastName: "Obi", Phone: "+2348000000000", Password: testPassword,
		}}},
		{domain.StepBusinessType, StepInput{BusinessType: &BusinessTypeInput{BusinessType: "services"}}},
		{domain.StepShopDetails, StepInput{ShopDetails: &ShopDetailsInput{
			BusinessName: businessName, Description: "Phone and laptop repairs",
		}}},
		{domain.StepLocation, StepInput{Location: &LocationInput{
			Country: "NG", State: "Lagos", LocalArea: "Ikeja", Address: "1 Allen Ave",
		}}},
	}
	for _, s := range steps {
		_, err := h.registration.SubmitStep(ctx, token, s.step, s.input)
		require.NoError(t, err, "step %s", s.step)
	}
	return token
}

// lockstepSessions holds the first n session reads until all n have
// happened, so concurrent callers observe the same version.
type lockstepSessions struct {
	repository.SessionRepository
	reads sync.WaitGroup
	mu    sync.Mutex
	left  int
}

func newLockstepSessions(next repository.SessionRepository, n int) *lockstepSessions {
	l := &lockstepSessions{SessionRepository: next, left: n}
	l.reads.Add(n)
	return l
}

func (l *lockstepSessions) GetByToken(ctx context.Context, token string) (*domain.RegistrationSession, error) {
	session, err := l.SessionRepository.GetByToken(ctx, token)

	l.mu.Lock()
	hold := l.left > 0
	if hold {
		l.left--
	}
	l.mu.Unlock()

	if hold {
		l.reads.Done()
		l.reads.Wait()
	}
	return session, err
}
