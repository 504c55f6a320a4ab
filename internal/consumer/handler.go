package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
)

// dispatchTimeout bounds the processing of one message once it has been
// taken off the queue.
const dispatchTimeout = 30 * time.Second

// handleDelivery decodes and dispatches one message, then settles it.
// Undecodable bodies and failed dispatches are rejected without requeue:
// redelivering a message the pipeline has already examined would loop a
// poison message forever.
func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	c.metrics.IncConsumed()

	env, err := models.DecodeEnvelope(msg.Body)
	if err != nil {
		c.logger.Error("failed to decode event envelope",
			slog.String("routing_key", msg.RoutingKey),
			slog.Any("error", err))
		c.metrics.IncRejected()
		_ = msg.Reject(false)
		return
	}

	// A message already taken off the queue is finished even when shutdown
	// starts mid-dispatch: aborting here would reject a valid message that
	// was never persisted. Processing runs detached from the shutdown
	// signal, bounded only by its own deadline.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if err := c.handler.Handle(dispatchCtx, env); err != nil {
		c.logger.Error("event dispatch failed, discarding message",
			slog.String("event", env.Event),
			slog.Any("error", err))
		c.metrics.IncRejected()
		_ = msg.Nack(false, false)
		return
	}

	c.metrics.IncAcked()
	_ = msg.Ack(false)
}
