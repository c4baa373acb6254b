package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_sessions_started_total",
			Help: "Registration sessions started, by signup method.",
		},
		[]string{"method"},
	)

	stepsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_steps_submitted_total",
			Help: "Registration steps accepted, by step.",
		},
		[]string{"step"},
	)

	registrationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_completed_total",
			Help: "Registration sessions finalized into accounts, by signup method.",
		},
		[]string{"method"},
	)

	tokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_token_pairs_issued_total",
			Help: "Access/refresh token pairs issued.",
		},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Refresh attempts, by result.",
		},
		[]string{"result"},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts, by method and result.",
		},
		[]string{"method", "result"},
	)

	passwordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_resets_total",
			Help: "Password reset operations, by stage.",
		},
		[]string{"stage"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Best-effort notifications that could not be dispatched, by kind.",
		},
		[]string{"kind"},
	)
)

func signupMethod(oauth bool) string {
	if oauth {
		return "oauth"
	}
	return "email"
}
