package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/repository"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/metrics"
)

const defaultSummaryEvery = 5

// Dispatcher fans a decoded event out to the configured delivery channels,
// records one outcome per attempted channel and persists the notification
// record. Channel failures are absorbed into the record; only a persistence
// failure propagates back to the consumer.
type Dispatcher struct {
	store   NotificationStore
	webhook WebhookSender
	mailer  Mailer
	metrics *metrics.Metrics
	logger  *slog.Logger

	summaryEvery int64
	now          func() time.Time
}

func NewDispatcher(
	store NotificationStore,
	webhook WebhookSender,
	mailer Mailer,
	m *metrics.Metrics,
	logger *slog.Logger,
	summaryEvery int,
) *Dispatcher {
	if summaryEvery <= 0 {
		summaryEvery = defaultSummaryEvery
	}
	return &Dispatcher{
		store:        store,
		webhook:      webhook,
		mailer:       mailer,
		metrics:      m,
		logger:       logger,
		summaryEvery: int64(summaryEvery),
		now:          time.Now,
	}
}

// Handle lets the dispatcher act as the consumer's event handler.
func (d *Dispatcher) Handle(ctx context.Context, env *models.EventEnvelope) error {
	return d.Dispatch(ctx, env)
}

// Dispatch processes one event end to end. The returned error is non-nil
// only when the notification record could not be persisted; the consumer
// rejects the message in that case.
func (d *Dispatcher) Dispatch(ctx context.Context, env *models.EventEnvelope) error {
	start := d.now()
	n := d.buildNotification(env)

	n.Channels = append(n.Channels, d.sendConsole(env))
	if d.webhook != nil {
		n.Channels = append(n.Channels, d.sendWebhook(ctx, env))
	}
	if d.mailer != nil {
		n.Channels = append(n.Channels, d.sendEmail(ctx, env))
	}

	n.Status = models.StatusSent
	n.ProcessedAt = d.now().UTC()
	if !env.Timestamp.IsZero() {
		n.ProcessingDuration = n.ProcessedAt.Sub(env.Timestamp).Milliseconds()
	} else {
		n.ProcessingDuration = n.ProcessedAt.Sub(start).Milliseconds()
	}

	stored, err := d.store.Create(ctx, n)
	if err != nil {
		d.recordFailure(ctx, env, err)
		return fmt.Errorf("persist notification: %w", err)
	}

	d.logger.Info("notification persisted",
		slog.String("id", stored.ID.Hex()),
		slog.String("event", env.Event),
		slog.String("type", string(stored.Type)),
		slog.Int64("duration_ms", stored.ProcessingDuration))

	if stored.Type == models.TypeUserRegistration {
		d.maybeSendSummary(ctx)
	}
	return nil
}

func (d *Dispatcher) buildNotification(env *models.EventEnvelope) *models.Notification {
	n := &models.Notification{
		UserID:         env.UserID(),
		UserName:       env.UserName(),
		UserEmail:      env.UserEmail(),
		Priority:       models.PriorityNormal,
		EventData:      env.Data(),
		EventTimestamp: env.Timestamp,
	}

	switch env.Event {
	case models.EventUserRegistered:
		n.Type = models.TypeUserRegistration
		n.Title = "New User Registered"
		n.Message = fmt.Sprintf("%s (%s) just created an account", env.UserName(), env.UserEmail())
	case models.EventWalletDeposit:
		n.Type = models.TypeCustom
		n.Title = "Wallet Deposit"
		n.Message = fmt.Sprintf("%s deposited %.2f, new balance %.2f",
			env.UserName(), env.Deposit.Amount, env.Deposit.WalletBalance)
	default:
		n.Type = models.TypeCustom
		n.Title = "Event Received"
		n.Message = fmt.Sprintf("received %s event", env.Event)
	}
	return n
}

// sendConsole is the local log channel. It cannot fail once reached.
func (d *Dispatcher) sendConsole(env *models.EventEnvelope) models.ChannelOutcome {
	d.logger.Info("notification",
		slog.String("event", env.Event),
		slog.String("user_id", env.UserID()),
		slog.String("user_name", env.UserName()),
		slog.String("user_email", env.UserEmail()),
		slog.String("source", env.Service))
	return models.ChannelOutcome{
		Name:   models.ChannelConsole,
		Status: models.ChannelSuccess,
		SentAt: d.now().UTC(),
	}
}

func (d *Dispatcher) sendWebhook(ctx context.Context, env *models.EventEnvelope) models.ChannelOutcome {
	out := models.ChannelOutcome{
		Name:   models.ChannelWebhook,
		Status: models.ChannelSuccess,
		SentAt: d.now().UTC(),
	}

	var err error
	switch env.Event {
	case models.EventUserRegistered:
		err = d.webhook.SendUserRegistration(ctx, env.Registration)
	case models.EventWalletDeposit:
		err = d.webhook.SendWalletDeposit(ctx, env.Deposit)
	}

	if err != nil {
		d.metrics.IncWebhookFailed()
		d.logger.Warn("webhook delivery failed",
			slog.String("event", env.Event),
			slog.Any("error", err))
		out.Status = models.ChannelFailed
		out.Error = err.Error()
		return out
	}
	d.metrics.IncWebhookDelivered()
	return out
}

func (d *Dispatcher) sendEmail(ctx context.Context, env *models.EventEnvelope) models.ChannelOutcome {
	out := models.ChannelOutcome{
		Name:   models.ChannelEmail,
		Status: models.ChannelSuccess,
		SentAt: d.now().UTC(),
	}

	template := TemplateWelcome
	if env.Event == models.EventWalletDeposit {
		template = TemplateWalletDeposit
	}

	if err := d.mailer.Send(ctx, template, env.UserEmail(), env.Data()); err != nil {
		d.logger.Warn("email delivery failed",
			slog.String("event", env.Event),
			slog.String("template", template),
			slog.Any("error", err))
		out.Status = models.ChannelFailed
		out.Error = err.Error()
	}
	return out
}

// maybeSendSummary fires an admin summary whenever the running count of sent
// registration records lands on a multiple of the threshold. The count is
// read back from the store, so it survives process restarts; under multiple
// consumers the check-then-act is racy and a summary may double-fire, which
// is accepted for this best-effort channel.
func (d *Dispatcher) maybeSendSummary(ctx context.Context) {
	count, err := d.store.CountByTypeAndStatus(ctx, models.TypeUserRegistration, models.StatusSent)
	if err != nil {
		d.logger.Error("failed to count registrations for summary", slog.Any("error", err))
		return
	}
	if count == 0 || count%d.summaryEvery != 0 {
		return
	}

	stats, err := d.store.Stats(ctx, repository.Filter{})
	if err != nil {
		d.logger.Error("failed to compute summary stats", slog.Any("error", err))
		return
	}

	summary := &models.Notification{
		UserID:    "system",
		UserName:  "System",
		UserEmail: "system@notification-service.local",
		Type:      models.TypeAdminSummary,
		Title:     "Registration Summary",
		Message:   fmt.Sprintf("%d registrations processed", count),
		Status:    models.StatusSent,
		Priority:  models.PriorityLow,
		Channels:  []models.ChannelOutcome{},
	}

	if d.webhook != nil {
		out := models.ChannelOutcome{
			Name:   models.ChannelWebhook,
			Status: models.ChannelSuccess,
			SentAt: d.now().UTC(),
		}
		if err := d.webhook.SendAdminSummary(ctx, stats); err != nil {
			d.logger.Warn("failed to send admin summary webhook", slog.Any("error", err))
			out.Status = models.ChannelFailed
			out.Error = err.Error()
		}
		summary.Channels = append(summary.Channels, out)
	}

	if _, err := d.store.Create(ctx, summary); err != nil {
		d.logger.Error("failed to persist admin summary", slog.Any("error", err))
		return
	}
	d.metrics.IncSummaries()
	d.logger.Info("admin summary sent", slog.Int64("registrations", count))
}

// recordFailure writes a best-effort error record after a persistence
// failure, then lets the original error propagate to the consumer.
func (d *Dispatcher) recordFailure(ctx context.Context, env *models.EventEnvelope, cause error) {
	errRec := &models.Notification{
		UserID:         orUnknown(env.UserID()),
		UserName:       orUnknown(env.UserName()),
		UserEmail:      orUnknown(env.UserEmail()),
		Type:           models.TypeError,
		Title:          "Notification Processing Failed",
		Message:        cause.Error(),
		Status:         models.StatusFailed,
		Priority:       models.PriorityHigh,
		Channels:       []models.ChannelOutcome{},
		EventData:      env.Data(),
		EventTimestamp: env.Timestamp,
		ErrorInfo: &models.ErrorInfo{
			Message: cause.Error(),
			Stack:   string(debug.Stack()),
			Code:    "PERSISTENCE_ERROR",
		},
	}
	if _, err := d.store.Create(ctx, errRec); err != nil {
		d.logger.Error("failed to persist error record", slog.Any("error", err))
	}
	if d.webhook != nil {
		if err := d.webhook.SendError(ctx, cause, env.Data()); err != nil {
			d.logger.Warn("failed to send error webhook", slog.Any("error", err))
		}
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
