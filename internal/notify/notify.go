// Package notify delivers the transactional messages of the onboarding
// flow. Delivery is always best-effort from the caller's point of view.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/Muhadev/celm-backend/pkg/kafka"
	"github.com/Muhadev/celm-backend/pkg/logger"
)

// Dispatcher sends onboarding notifications.
type Dispatcher interface {
	SendVerification(ctx context.Context, email, verificationToken, sessionToken string) error
	SendWelcome(ctx context.Context, email, firstName string) error
	SendPasswordReset(ctx context.Context, email, resetToken string) error
}

// Template names understood by the mail worker.
const (
	TemplateVerification  = "registration_verification"
	TemplateWelcome       = "account_welcome"
	TemplatePasswordReset = "password_reset"
)

// TopicEmail carries outbound email requests.
const TopicEmail = "celm.notification.email"

// EmailRequest is the payload of a message on TopicEmail.
type EmailRequest struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaDispatcher hands email requests to the mail worker over Kafka.
type KafkaDispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewKafkaDispatcher(publisher Publisher, logger *slog.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: publisher, logger: logger}
}

func (d *KafkaDispatcher) SendVerification(ctx context.Context, email, verificationToken, sessionToken string) error {
	return d.send(ctx, EmailRequest{
		To:       email,
		Template: TemplateVerification,
		Data: map[string]string{
			"verification_token": verificationToken,
			"session_token":      sessionToken,
		},
	})
}

func (d *KafkaDispatcher) SendWelcome(ctx context.Context, email, firstName string) error {
	return d.send(ctx, EmailRequest{
		To:       email,
		Template: TemplateWelcome,
		Data:     map[string]string{"first_name": firstName},
	})
}

func (d *KafkaDispatcher) SendPasswordReset(ctx context.Context, email, resetToken string) error {
	return d.send(ctx, EmailRequest{
		To:       email,
		Template: TemplatePasswordReset,
		Data:     map[string]string{"reset_token": resetToken},
	})
}

func (d *KafkaDispatcher) send(ctx context.Context, req EmailRequest) error {
	evt, err := pkgkafka.NewEvent("notification.email", req.To, "email", "onboarding-service", req)
	if err != nil {
		return fmt.Errorf("create %s email: %w", req.Template, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if err := d.publisher.Publish(ctx, TopicEmail, evt); err != nil {
		return fmt.Errorf("dispatch %s email: %w", req.Template, err)
	}
	d.logger.DebugContext(ctx, "email dispatched", slog.String("template", req.Template))
	return nil
}

// LogDispatcher writes notifications to the log instead of sending them.
// Only for local development: it logs the secrets it is given.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendVerification(ctx context.Context, email, verificationToken, sessionToken string) error {
	d.logger.InfoContext(ctx, "verification email",
		slog.String("to", email),
		slog.String("verification_token", verificationToken),
		slog.String("session_token", sessionToken),
	)
	return nil
}

func (d *LogDispatcher) SendWelcome(ctx context.Context, email, firstName string) error {
	d.logger.InfoContext(ctx, "welcome email",
		slog.String("to", email),
		slog.String("first_name", firstName),
	)
	return nil
}

func (d *LogDispatcher) SendPasswordReset(ctx context.Context, email, resetToken string) error {
	d.logger.InfoContext(ctx, "password reset email",
		slog.String("to", email),
		slog.String("reset_token", resetToken),
	)
	return nil
}
