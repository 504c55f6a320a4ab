package services

import (
	"context"
	"fmt"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/repository"
)

// NotificationStore is the persistence capability the dispatcher needs.
// *repository.NotificationStore satisfies it.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	CountByTypeAndStatus(ctx context.Context, typ models.NotificationType, status models.NotificationStatus) (int64, error)
	Stats(ctx context.Context, f repository.Filter) (*repository.Stats, error)
}

// WebhookSender is the outbound chat-webhook capability. Implemented by
// DiscordClient; nil when no webhook target is configured.
type WebhookSender interface {
	SendUserRegistration(ctx context.Context, reg *models.RegistrationPayload) error
	SendWalletDeposit(ctx context.Context, dep *models.DepositPayload) error
	SendAdminSummary(ctx context.Context, stats *repository.Stats) error
	SendError(ctx context.Context, cause error, eventContext map[string]interface{}) error
}

// Mailer is the external mail-sending collaborator, keyed by template name
// and recipient address. Its templating and transport live in the email
// service, outside this process.
type Mailer interface {
	Send(ctx context.Context, template, recipient string, data map[string]interface{}) error
}

// DeliveryError is a channel-level failure. It is absorbed into the channel
// outcome on the notification record and never aborts the pipeline.
type DeliveryError struct {
	Channel models.ChannelName
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
