package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Muhadev/celm-backend/internal/service"
	"github.com/Muhadev/celm-backend/pkg/health"
	"github.com/Muhadev/celm-backend/pkg/middleware"
)

const serviceName = "onboarding"

// RouterDeps are the collaborators NewRouter mounts. RateLimit throttles the
// unauthenticated credential endpoints.
type RouterDeps struct {
	Registration *service.RegistrationService
	Accounts     *service.AccountService
	Tokens       *service.TokenService
	Health       *health.Handler
	CORS         middleware.CORSConfig
	RateLimit    middleware.RateLimitConfig
	Logger       *slog.Logger
}

// NewRouter creates a chi router with all onboarding routes registered.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(d.CORS))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestLogging(d.Logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	tokenValidator := func(_ context.Context, token string) (*middleware.Principal, error) {
		claims, err := d.Tokens.ValidateAccess(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{AccountID: claims.AccountID, Email: claims.Email}, nil
	}

	throttle := middleware.RateLimit(d.RateLimit, d.Logger)

	registration := NewRegistrationHandler(d.Registration, d.Logger)
	r.Route("/api/v1/registration", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(throttle).Post("/sessions", registration.StartSession)
		r.With(throttle).Post("/sessions/oauth", registration.StartOAuthSession)

		r.Route("/sessions/current", func(r chi.Router) {
			r.Get("/", registration.GetSession)
			r.With(throttle).Post("/verify", registration.VerifyEmail)
			r.With(throttle).Post("/resend-verification", registration.ResendVerification)
			r.Put("/steps/{step}", registration.SubmitStep)
			r.Post("/finalize", registration.Finalize)
		})

		r.Get("/handles/suggestions", registration.SuggestHandles)
		r.Get("/handles/{handle}", registration.HandleAvailability)
	})

	authHandler := NewAuthHandler(d.Accounts, d.Tokens, d.Logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/login", authHandler.Login)
			r.Post("/oauth/login", authHandler.OAuthLogin)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
		})
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Post("/change-password", authHandler.ChangePassword)
		})
	})

	accountHandler := NewAccountHandler(d.Accounts, d.Logger)
	r.Route("/api/v1/accounts", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))
		r.Get("/me", accountHandler.GetProfile)
	})

	return r
}
