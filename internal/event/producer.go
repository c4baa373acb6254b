package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Muhadev/celm-backend/internal/domain"
	pkgkafka "github.com/Muhadev/celm-backend/pkg/kafka"
	"github.com/Muhadev/celm-backend/pkg/logger"
)

// Kafka topic constants for account domain events.
const (
	TopicAccountRegistered    = "celm.account.registered"
	TopicAccountPasswordReset = "celm.account.password_reset"
)

const (
	AggregateTypeAccount = "account"
	SourceOnboarding     = "onboarding-service"
)

// AccountRegisteredData is the payload for an account.registered event.
type AccountRegisteredData struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	BusinessType  string `json:"business_type"`
	BusinessName  string `json:"business_name"`
	ShopHandle    string `json:"shop_handle"`
	Country       string `json:"country"`
	OAuthProvider string `json:"oauth_provider,omitempty"`
}

// AccountPasswordResetData is the payload for an account.password_reset event.
type AccountPasswordResetData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// Publisher is the transport events are handed to. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes account domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer. A nil publisher makes every
// publish a logged no-op, for deployments without a broker.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishAccountRegistered publishes an account.registered event.
func (p *Producer) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	data := AccountRegisteredData{
		ID:            account.ID,
		Email:         account.Email,
		FirstName:     account.FirstName,
		LastName:      account.LastName,
		BusinessType:  string(account.BusinessType),
		BusinessName:  account.BusinessName,
		ShopHandle:    account.ShopHandle,
		Country:       account.Country,
		OAuthProvider: account.OAuthProvider,
	}
	return p.publish(ctx, TopicAccountRegistered, account.ID, data)
}

// PublishAccountPasswordReset publishes an account.password_reset event.
func (p *Producer) PublishAccountPasswordReset(ctx context.Context, accountID, email string) error {
	data := AccountPasswordResetData{AccountID: accountID, Email: email}
	return p.publish(ctx, TopicAccountPasswordReset, accountID, data)
}

func (p *Producer) publish(ctx context.Context, topic, accountID string, data any) error {
	if p.publisher == nil {
		p.logger.DebugContext(ctx, "event publishing disabled, dropping event",
			slog.String("topic", topic),
			slog.String("account_id", accountID),
		)
		return nil
	}

	evt, err := pkgkafka.NewEvent(topic, accountID, AggregateTypeAccount, SourceOnboarding, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published account event",
		slog.String("topic", topic),
		slog.String("account_id", accountID),
	)
	return nil
}
