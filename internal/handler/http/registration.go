package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Muhadev/celm-backend/internal/domain"
	"github.com/Muhadev/celm-backend/internal/service"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
	"github.com/Muhadev/celm-backend/pkg/httputil"
)

// RegistrationHandler serves the signup wizard.
type RegistrationHandler struct {
	service *service.RegistrationService
	logger  *slog.Logger
}

func NewRegistrationHandler(svc *service.RegistrationService, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

type StartSessionRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type StartOAuthSessionRequest struct {
	Provider    string `json:"provider" validate:"required,max=32"`
	AccessToken string `json:"access_token" validate:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// PersonalInfoRequest leaves names and password optional at the tag level:
// OAuth sessions arrive with names prefilled and need no password.
type EmailStepRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type PersonalInfoRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
	Password  string `json:"password" validate:"omitempty,max=72"`
}

type BusinessTypeRequest struct {
	BusinessType string `json:"business_type" validate:"required,max=32"`
}

type ShopDetailsRequest struct {
	BusinessName    string `json:"business_name" validate:"required,max=120"`
	Description     string `json:"description" validate:"required,max=1000"`
	PreferredHandle string `json:"preferred_handle" validate:"omitempty,max=60"`
}

type LocationRequest struct {
	Country   string `json:"country" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	LocalArea string `json:"local_area" validate:"required,max=100"`
	Address   string `json:"address" validate:"required,max=255"`
}

// --- Response types ---

// SessionResponse is the client view of a registration session. Secrets
// other than the session token itself are never included.
type SessionResponse struct {
	ID              string           `json:"id"`
	Token           string           `json:"token,omitempty"`
	Email           string           `json:"email"`
	EmailVerified   bool             `json:"email_verified"`
	OAuthProvider   string           `json:"oauth_provider,omitempty"`
	CurrentStep     domain.Step      `json:"current_step"`
	CurrentStepName string           `json:"current_step_name"`
	Steps           StepDataResponse `json:"steps"`
	ExpiresAt       time.Time        `json:"expires_at"`
	Resumed         bool             `json:"resumed,omitempty"`
	Warning         string           `json:"warning,omitempty"`
}

type PersonalInfoResponse struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone,omitempty"`
	HasPassword bool   `json:"has_password"`
}

type StepDataResponse struct {
	PersonalInfo *PersonalInfoResponse   `json:"personal_info,omitempty"`
	BusinessType *domain.BusinessTypeStep `json:"business_type,omitempty"`
	ShopDetails  *domain.ShopDetailsStep  `json:"shop_details,omitempty"`
	Location     *domain.LocationStep     `json:"location,omitempty"`
}

type HandleAvailabilityResponse struct {
	Handle    string `json:"handle"`
	Available bool   `json:"available"`
}

type HandleSuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func toSessionResponse(s *domain.RegistrationSession) SessionResponse {
	resp := SessionResponse{
		ID:              s.ID,
		Token:           s.Token,
		Email:           s.Email,
		EmailVerified:   s.EmailVerified,
		OAuthProvider:   s.OAuthProvider,
		CurrentStep:     s.CurrentStep,
		CurrentStepName: s.CurrentStep.String(),
		ExpiresAt:       s.ExpiresAt,
		Steps: StepDataResponse{
			BusinessType: s.Steps.BusinessType,
			ShopDetails:  s.Steps.ShopDetails,
			Location:     s.Steps.Location,
		},
	}
	if p := s.Steps.PersonalInfo; p != nil {
		resp.Steps.PersonalInfo = &PersonalInfoResponse{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Phone:       p.Phone,
			HasPassword: p.PasswordHash != "",
		}
	}
	return resp
}

// --- Handlers ---

// StartSession handles POST /api/v1/registration/sessions
func (h *RegistrationHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.StartSession(r.Context(), req.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := toSessionResponse(result.Session)
	resp.Resumed = result.Resumed
	resp.Warning = result.Warning

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	httputil.WriteData(w, status, resp)
}

// StartOAuthSession handles POST /api/v1/registration/sessions/oauth
func (h *RegistrationHandler) StartOAuthSession(w http.ResponseWriter, r *http.Request) {
	var req StartOAuthSessionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	session, err := h.service.StartOAuthSessionWithToken(r.Context(), req.Provider, req.AccessToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, toSessionResponse(session))
}

// GetSession handles GET /api/v1/registration/sessions/current
func (h *RegistrationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), sessionToken(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toSessionResponse(session))
}

// VerifyEmail handles POST /api/v1/registration/sessions/current/verify
func (h *RegistrationHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	session, err := h.service.VerifyEmail(r.Context(), sessionToken(r), req.Token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toSessionResponse(session))
}

// ResendVerification handles POST /api/v1/registration/sessions/current/resend-verification
func (h *RegistrationHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ResendVerification(r.Context(), sessionToken(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toSessionResponse(session))
}

// SubmitStep handles PUT /api/v1/registration/sessions/current/steps/{step}
func (h *RegistrationHandler) SubmitStep(w http.ResponseWriter, r *http.Request) {
	step, err := domain.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	var input service.StepInput
	switch step {
	case domain.StepEmailInput:
		var req EmailStepRequest
		if err = httputil.DecodeJSON(w, r, &req); err == nil {
			input.Email = &service.EmailInput{Email: req.Email}
		}
	case domain.StepPersonalInfo:
		var req PersonalInfoRequest
		if err = httputil.DecodeJSON(w, r, &req); err == nil {
			input.PersonalInfo = &service.PersonalInfoInput{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Phone:     req.Phone,
				Password:  req.Password,
			}
		}
	case domain.StepBusinessType:
		var req BusinessTypeRequest
		if err = httputil.DecodeJSON(w, r, &req); err == nil {
			input.BusinessType = &service.BusinessTypeInput{BusinessType: req.BusinessType}
		}
	case domain.StepShopDetails:
		var req ShopDetailsRequest
		if err = httputil.DecodeJSON(w, r, &req); err == nil {
			input.ShopDetails = &service.ShopDetailsInput{
				BusinessName:    req.BusinessName,
				Description:     req.Description,
				PreferredHandle: req.PreferredHandle,
			}
		}
	case domain.StepLocation:
		var req LocationRequest
		if err = httputil.DecodeJSON(w, r, &req); err == nil {
			input.Location = &service.LocationInput{
				Country:   req.Country,
				State:     req.State,
				LocalArea: req.LocalArea,
				Address:   req.Address,
			}
		}
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	session, err := h.service.SubmitStep(r.Context(), sessionToken(r), step, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toSessionResponse(session))
}

// Finalize handles POST /api/v1/registration/sessions/current/finalize
func (h *RegistrationHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	account, tokens, err := h.service.Finalize(r.Context(), sessionToken(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, AuthResponse{Account: account, Tokens: tokens})
}

// SuggestHandles handles GET /api/v1/registration/handles/suggestions
func (h *RegistrationHandler) SuggestHandles(w http.ResponseWriter, r *http.Request) {
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, r, apperrors.InvalidInput("count must be a positive integer"), h.logger)
			return
		}
		count = n
	}

	suggestions, err := h.service.SuggestHandles(r.Context(), r.URL.Query().Get("name"), count)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, HandleSuggestionsResponse{Suggestions: suggestions})
}

// HandleAvailability handles GET /api/v1/registration/handles/{handle}
func (h *RegistrationHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	normalized, available, err := h.service.HandleAvailable(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, HandleAvailabilityResponse{Handle: normalized, Available: available})
}
