package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Muhadev/celm-backend/internal/auth"
	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/internal/handle"
	"github.com/Muhadev/celm-backend/internal/notify"
	"github.com/Muhadev/celm-backend/internal/repository"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

// DefaultSessionTTL is how long an unfinished registration stays resumable.
const DefaultSessionTTL = 2 * time.Hour

// WarningVerificationUndelivered is returned alongside a started session when
// the verification email could not be handed off.
const WarningVerificationUndelivered = "verification email could not be sent; request a new one"

// RegistrationDeps are the collaborators of RegistrationService.
type RegistrationDeps struct {
	Sessions   repository.SessionRepository
	Accounts   repository.AccountRepository
	Tx         repository.Transactor
	Tokens     *TokenService
	Handles    *handle.Generator
	Hasher     *auth.TokenHasher
	Passwords  *auth.PasswordHasher
	Notifier   notify.Dispatcher
	Events     EventPublisher
	Profiles   ProfileResolver
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// RegistrationService drives the signup wizard: a session collects the five
// steps in order and Finalize turns it into an account in one transaction.
type RegistrationService struct {
	sessions   repository.SessionRepository
	accounts   repository.AccountRepository
	tx         repository.Transactor
	tokens     *TokenService
	handles    *handle.Generator
	hasher     *auth.TokenHasher
	passwords  *auth.PasswordHasher
	notifier   notify.Dispatcher
	events     EventPublisher
	profiles   ProfileResolver
	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewRegistrationService(d RegistrationDeps) *RegistrationService {
	ttl := d.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RegistrationService{
		sessions:   d.Sessions,
		accounts:   d.Accounts,
		tx:         d.Tx,
		tokens:     d.Tokens,
		handles:    d.Handles,
		hasher:     d.Hasher,
		passwords:  d.Passwords,
		notifier:   d.Notifier,
		events:     d.Events,
		profiles:   d.Profiles,
		sessionTTL: ttl,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     d.Logger,
	}
}

// StartSessionResult is the outcome of StartSession.
type StartSessionResult struct {
	Session *domain.RegistrationSession
	// Resumed is set when a live session for the email already existed.
	Resumed bool
	// Warning is non-empty when the session was created but a side effect
	// failed.
	Warning string
}

// --- Step inputs ---

type PersonalInfoInput struct {
	FirstName string
	LastName  string
	Phone     string
	Password  string
}

// EmailInput confirms the address the session was started for.
type EmailInput struct {
	Email string
}

type BusinessTypeInput struct {
	BusinessType string
}

type ShopDetailsInput struct {
	BusinessName    string
	Description     string
	PreferredHandle string
}

type LocationInput struct {
	Country   string
	State     string
	LocalArea string
	Address   string
}

// StepInput carries the payload of one step; only the field matching the
// submitted step is read.
type StepInput struct {
	Email        *EmailInput
	PersonalInfo *PersonalInfoInput
	BusinessType *BusinessTypeInput
	ShopDetails  *ShopDetailsInput
	Location     *LocationInput
}

// --- Session lifecycle ---

// StartSession begins an email signup. A live session for the same email is
// returned as is while it is untouched; once verified or past the email step
// it is returned without its token, which only the original requester holds.
func (s *RegistrationService) StartSession(ctx context.Context, email string) (*StartSessionResult, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("a valid email address is required")
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	existing, err := s.sessions.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.EmailVerified || existing.CurrentStep > domain.StepEmailInput {
			existing.Token = ""
		}
		return &StartSessionResult{Session: existing, Resumed: true}, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("get registration session: %w", err)
	}

	sessionToken, err := auth.GenerateSecret()
	if err != nil {
		return nil, err
	}
	verificationToken, err := auth.GenerateSecret()
	if err != nil {
		return nil, err
	}

	session := domain.NewRegistrationSession(email, sessionToken, s.now(), s.sessionTTL)
	session.VerificationTokenHash = s.hasher.Hash(verificationToken)

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.Conflict("a registration for this email was started concurrently")
		}
		return nil, fmt.Errorf("create registration session: %w", err)
	}
	sessionsStarted.WithLabelValues(signupMethod(false)).Inc()

	result := &StartSessionResult{Session: session}
	if err := s.notifier.SendVerification(ctx, email, verificationToken, sessionToken); err != nil {
		notificationFailures.WithLabelValues("verification").Inc()
		s.logger.ErrorContext(ctx, "failed to send verification email",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		result.Warning = WarningVerificationUndelivered
	}

	s.logger.InfoContext(ctx, "registration session started",
		slog.String("session_id", session.ID),
	)
	return result, nil
}

// StartOAuthSession begins a signup from a provider identity. The email is
// already verified, so the session starts at the personal info step with the
// provider's names filled in. Any unfinished session for the email is
// replaced.
func (s *RegistrationService) StartOAuthSession(ctx context.Context, email string, profile domain.OAuthProfile) (*domain.RegistrationSession, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("a valid email address is required")
	}
	if profile.Provider == "" || profile.Subject == "" {
		return nil, apperrors.InvalidInput("oauth provider and subject are required")
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	existing, err := s.sessions.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.sessions.Delete(ctx, existing); err != nil {
			return nil, fmt.Errorf("replace registration session: %w", err)
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("get registration session: %w", err)
	}

	sessionToken, err := auth.GenerateSecret()
	if err != nil {
		return nil, err
	}

	session := domain.NewRegistrationSession(email, sessionToken, s.now(), s.sessionTTL)
	session.EmailVerified = true
	session.OAuthProvider = profile.Provider
	session.OAuthSubject = profile.Subject
	session.Steps.PersonalInfo = &domain.PersonalInfoStep{
		FirstName: strings.TrimSpace(profile.GivenName),
		LastName:  strings.TrimSpace(profile.FamilyName),
	}
	session.CurrentStep = domain.StepPersonalInfo

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.Conflict("a registration for this email was started concurrently")
		}
		return nil, fmt.Errorf("create registration session: %w", err)
	}
	sessionsStarted.WithLabelValues(signupMethod(true)).Inc()

	s.logger.InfoContext(ctx, "oauth registration session started",
		slog.String("session_id", session.ID),
		slog.String("provider", profile.Provider),
	)
	return session, nil
}

// StartOAuthSessionWithToken resolves the provider profile for accessToken
// and starts an OAuth session for its email.
func (s *RegistrationService) StartOAuthSessionWithToken(ctx context.Context, provider, accessToken string) (*domain.RegistrationSession, error) {
	profile, err := s.profiles.Resolve(ctx, provider, accessToken)
	if err != nil {
		return nil, err
	}
	return s.StartOAuthSession(ctx, profile.Email, *profile)
}

// GetSession returns the live session for sessionToken.
func (s *RegistrationService) GetSession(ctx context.Context, sessionToken string) (*domain.RegistrationSession, error) {
	return s.load(ctx, sessionToken)
}

// VerifyEmail marks the email as verified with the token from the
// verification email. On a session still at the email step it also
// completes that step.
func (s *RegistrationService) VerifyEmail(ctx context.Context, sessionToken, verificationToken string) (*domain.RegistrationSession, error) {
	session, err := s.load(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if session.EmailVerified {
		return nil, apperrors.InvalidInput("email address is already verified")
	}
	if !s.hasher.Verify(verificationToken, session.VerificationTokenHash) {
		return nil, apperrors.InvalidInput("invalid verification token")
	}

	session.EmailVerified = true
	session.VerificationTokenHash = ""
	session.Advance(domain.StepEmailInput, s.now())

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	stepsSubmitted.WithLabelValues(domain.StepEmailInput.String()).Inc()
	return session, nil
}

// ResendVerification issues a fresh verification token, invalidating the
// previous one, and sends it again.
func (s *RegistrationService) ResendVerification(ctx context.Context, sessionToken string) (*domain.RegistrationSession, error) {
	session, err := s.load(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if session.EmailVerified {
		return nil, apperrors.InvalidInput("email address is already verified")
	}

	verificationToken, err := auth.GenerateSecret()
	if err != nil {
		return nil, err
	}
	session.VerificationTokenHash = s.hasher.Hash(verificationToken)
	session.UpdatedAt = s.now()
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	if err := s.notifier.SendVerification(ctx, session.Email, verificationToken, session.Token); err != nil {
		notificationFailures.WithLabelValues("verification").Inc()
		s.logger.ErrorContext(ctx, "failed to resend verification email",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("verification email could not be sent")
	}
	return session, nil
}

// SubmitStep stores the payload of the current step and advances the
// session. Steps are submitted strictly in order. Email verification is
// tracked separately and does not gate submission.
func (s *RegistrationService) SubmitStep(ctx context.Context, sessionToken string, step domain.Step, input StepInput) (*domain.RegistrationSession, error) {
	session, err := s.load(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	switch {
	case step < domain.StepEmailInput || step > domain.StepLocation:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown registration step %d", step))
	case session.CurrentStep == domain.StepComplete:
		return nil, apperrors.InvalidInput("all steps are complete; finalize the registration")
	case step != session.CurrentStep:
		return nil, apperrors.InvalidInput(fmt.Sprintf("expected step %s, got %s", session.CurrentStep, step))
	}

	switch step {
	case domain.StepEmailInput:
		err = applyEmail(session, input.Email)
	case domain.StepPersonalInfo:
		err = s.applyPersonalInfo(session, input.PersonalInfo)
	case domain.StepBusinessType:
		err = applyBusinessType(session, input.BusinessType)
	case domain.StepShopDetails:
		err = s.applyShopDetails(ctx, session, input.ShopDetails)
	case domain.StepLocation:
		err = applyLocation(session, input.Location)
	}
	if err != nil {
		return nil, err
	}
	if !session.StepValid(step) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s payload is incomplete", step))
	}

	session.Advance(step, s.now())
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	stepsSubmitted.WithLabelValues(step.String()).Inc()

	s.logger.DebugContext(ctx, "registration step submitted",
		slog.String("session_id", session.ID),
		slog.String("step", step.String()),
	)
	return session, nil
}

func applyEmail(session *domain.RegistrationSession, in *EmailInput) error {
	if in == nil {
		return apperrors.InvalidInput("email payload is required")
	}
	if domain.NormalizeEmail(in.Email) != session.Email {
		return apperrors.InvalidInput("email does not match the registration session")
	}
	session.Steps.Email = &domain.EmailStep{Email: session.Email}
	return nil
}

func (s *RegistrationService) applyPersonalInfo(session *domain.RegistrationSession, in *PersonalInfoInput) error {
	if in == nil {
		return apperrors.InvalidInput("personal_info payload is required")
	}

	info := domain.PersonalInfoStep{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
	}
	if prefill := session.Steps.PersonalInfo; session.IsOAuth() && prefill != nil {
		if info.FirstName == "" {
			info.FirstName = prefill.FirstName
		}
		if info.LastName == "" {
			info.LastName = prefill.LastName
		}
	}
	if err := requireFields("first_name", info.FirstName, "last_name", info.LastName); err != nil {
		return err
	}

	if in.Password != "" || !session.IsOAuth() {
		if err := domain.ValidatePassword(in.Password); err != nil {
			return apperrors.InvalidInput(err.Error())
		}
		hash, err := s.passwords.Hash(in.Password)
		if err != nil {
			return err
		}
		info.PasswordHash = hash
	}

	session.Steps.PersonalInfo = &info
	return nil
}

func applyBusinessType(session *domain.RegistrationSession, in *BusinessTypeInput) error {
	if in == nil {
		return apperrors.InvalidInput("business_type payload is required")
	}
	bt := domain.BusinessType(strings.ToLower(strings.TrimSpace(in.BusinessType)))
	if !bt.IsValid() {
		return apperrors.InvalidInput(fmt.Sprintf("unrecognized business type %q", in.BusinessType))
	}
	session.Steps.BusinessType = &domain.BusinessTypeStep{BusinessType: bt}
	return nil
}

func (s *RegistrationService) applyShopDetails(ctx context.Context, session *domain.RegistrationSession, in *ShopDetailsInput) error {
	if in == nil {
		return apperrors.InvalidInput("shop_details payload is required")
	}
	details := domain.ShopDetailsStep{
		BusinessName:    strings.TrimSpace(in.BusinessName),
		Description:     strings.TrimSpace(in.Description),
		PreferredHandle: strings.TrimSpace(in.PreferredHandle),
	}
	if err := requireFields("business_name", details.BusinessName, "description", details.Description); err != nil {
		return err
	}

	resolved, err := s.handles.ResolveUnique(ctx, handleBase(&details))
	if err != nil {
		return fmt.Errorf("resolve shop handle: %w", err)
	}
	details.ShopHandle = resolved

	session.Steps.ShopDetails = &details
	return nil
}

func applyLocation(session *domain.RegistrationSession, in *LocationInput) error {
	if in == nil {
		return apperrors.InvalidInput("location payload is required")
	}
	loc := domain.LocationStep{
		Country:   strings.TrimSpace(in.Country),
		State:     strings.TrimSpace(in.State),
		LocalArea: strings.TrimSpace(in.LocalArea),
		Address:   strings.TrimSpace(in.Address),
	}
	if err := requireFields("country", loc.Country, "state", loc.State, "local_area", loc.LocalArea, "address", loc.Address); err != nil {
		return err
	}
	session.Steps.Location = &loc
	return nil
}

// Finalize provisions the account described by a completed session and
// signs it in. The account records whether the email was verified. The handle check, account insert and refresh token record
// commit together or not at all.
func (s *RegistrationService) Finalize(ctx context.Context, sessionToken string) (*domain.Account, *domain.TokenPair, error) {
	session, err := s.load(ctx, sessionToken)
	if err != nil {
		return nil, nil, err
	}
	if missing := session.IncompleteSteps(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, step := range missing {
			names[i] = step.String()
		}
		return nil, nil, apperrors.InvalidInput("registration is incomplete: missing " + strings.Join(names, ", "))
	}

	var (
		account *domain.Account
		tokens  *domain.TokenPair
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		base := handleBase(session.Steps.ShopDetails)
		if err := s.accounts.LockHandleBase(ctx, base); err != nil {
			return err
		}

		shopHandle := session.Steps.ShopDetails.ShopHandle
		taken, err := s.accounts.ExistsByShopHandle(ctx, shopHandle)
		if err != nil {
			return fmt.Errorf("check shop handle: %w", err)
		}
		if taken {
			if shopHandle, err = s.handles.ResolveUnique(ctx, base); err != nil {
				return fmt.Errorf("resolve shop handle: %w", err)
			}
		}

		account = session.NewAccount(shopHandle, s.now())
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}

		tokens, err = s.tokens.Issue(ctx, account)
		return err
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.Is(err, apperrors.ErrAlreadyExists) && errors.As(err, &appErr) {
			return nil, nil, apperrors.Conflict(appErr.Message)
		}
		return nil, nil, err
	}
	registrationsCompleted.WithLabelValues(signupMethod(session.IsOAuth())).Inc()

	if err := s.events.PublishAccountRegistered(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.registered event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.notifier.SendWelcome(ctx, account.Email, account.FirstName); err != nil {
		notificationFailures.WithLabelValues("welcome").Inc()
		s.logger.ErrorContext(ctx, "failed to send welcome email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.sessions.Delete(ctx, session); err != nil {
		s.logger.WarnContext(ctx, "failed to delete finalized registration session",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "registration finalized",
		slog.String("account_id", account.ID),
		slog.String("shop_handle", account.ShopHandle),
	)
	return account, tokens, nil
}

// --- Handles ---

// SuggestHandles lists available handles for a business name.
func (s *RegistrationService) SuggestHandles(ctx context.Context, name string, count int) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	return s.handles.Suggestions(ctx, name, count)
}

// HandleAvailable reports the normalized form of h and whether it is free.
func (s *RegistrationService) HandleAvailable(ctx context.Context, h string) (string, bool, error) {
	normalized := handle.Normalize(h)
	ok, err := s.handles.IsAvailable(ctx, normalized)
	if err != nil {
		return "", false, err
	}
	return normalized, ok, nil
}

// --- helpers ---

func (s *RegistrationService) ensureEmailFree(ctx context.Context, email string) error {
	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check account email: %w", err)
	}
	if exists {
		return apperrors.Conflict("an account with this email already exists")
	}
	return nil
}

// load fetches a live session, treating expired ones as absent.
func (s *RegistrationService) load(ctx context.Context, sessionToken string) (*domain.RegistrationSession, error) {
	if sessionToken == "" {
		return nil, apperrors.NotFoundMessage("registration session not found or expired")
	}
	session, err := s.sessions.GetByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMessage("registration session not found or expired")
		}
		return nil, fmt.Errorf("get registration session: %w", err)
	}
	if session.IsExpired(s.now()) {
		if err := s.sessions.Delete(ctx, session); err != nil {
			s.logger.WarnContext(ctx, "failed to purge expired registration session",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperrors.NotFoundMessage("registration session not found or expired")
	}
	return session, nil
}

func (s *RegistrationService) save(ctx context.Context, session *domain.RegistrationSession) error {
	if err := s.sessions.Update(ctx, session); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMessage("registration session not found or expired")
		}
		return fmt.Errorf("update registration session: %w", err)
	}
	return nil
}

// handleBase is the normalized base a shop's handle is derived from.
func handleBase(d *domain.ShopDetailsStep) string {
	if d.PreferredHandle != "" {
		return handle.Normalize(d.PreferredHandle)
	}
	return handle.Normalize(d.BusinessName)
}

// requireFields takes name/value pairs and reports the first blank value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return apperrors.InvalidInput(pairs[i] + " is required")
		}
	}
	return nil
}
