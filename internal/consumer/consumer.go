package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/metrics"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/retry"
)

// EventHandler processes one decoded event. A returned error causes the
// message to be rejected without requeue.
type EventHandler interface {
	Handle(ctx context.Context, env *models.EventEnvelope) error
}

// QueueBinding ties one durable queue to a routing key on the events
// exchange.
type QueueBinding struct {
	Queue      string
	RoutingKey string
}

// Consumer owns the broker connection and channel, declares the durable
// queues and processes deliveries strictly sequentially: the prefetch limit
// of 1 keeps at most one message in flight per consumer process.
type Consumer struct {
	dial     func() (*amqp.Connection, error)
	exchange string
	bindings []QueueBinding
	handler  EventHandler
	metrics  *metrics.Metrics
	logger   *slog.Logger
	retryCfg retry.Config
}

func New(
	dial func() (*amqp.Connection, error),
	exchange string,
	bindings []QueueBinding,
	handler EventHandler,
	m *metrics.Metrics,
	logger *slog.Logger,
	retryCfg retry.Config,
) *Consumer {
	return &Consumer{
		dial:     dial,
		exchange: exchange,
		bindings: bindings,
		handler:  handler,
		metrics:  m,
		logger:   logger,
		retryCfg: retryCfg,
	}
}

// Start runs the consume loop until ctx is cancelled. A connection failure
// at startup is returned to the caller; a connection lost mid-run is
// re-dialed with backoff, and Start returns only when reconnection gives up
// or ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}

	for {
		sessionErr := c.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}

		c.logger.Warn("broker session ended, reconnecting", slog.Any("error", sessionErr))

		cfg := c.retryCfg
		cfg.OnRetry = func(attempt int, err error) {
			c.logger.Warn("broker reconnect failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		}
		var next *amqp.Connection
		if err := retry.Do(ctx, cfg, func() error {
			var derr error
			next, derr = c.dial()
			return derr
		}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broker reconnect: %w", err)
		}
		conn = next
	}
}

// consume runs one broker session: channel, queue topology, Qos(1), then a
// single loop draining all bound queues until closure or shutdown.
func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.setupTopology(ch); err != nil {
		return fmt.Errorf("queue setup: %w", err)
	}

	// One unacknowledged message at a time: the broker will not deliver
	// the next message until the current one is acked or rejected.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries := make(chan amqp.Delivery)
	for _, b := range c.bindings {
		msgs, err := ch.Consume(
			b.Queue,
			fmt.Sprintf("notification-%s", uuid.NewString()[:8]),
			false, // autoAck: manual acknowledgment required
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", b.Queue, err)
		}
		go forward(ctx, msgs, deliveries)
	}

	// Connection and channel each notify their own closure. A broker-side
	// basic.cancel kills the channel without touching the connection, so
	// watching only the connection would leave a dead session hanging.
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	c.logger.Info("consuming", slog.Int("queues", len(c.bindings)))

	return c.receive(ctx, connClosed, chClosed, deliveries)
}

// receive drains deliveries until shutdown or until the connection or
// channel reports closure. A closure error is returned to trigger reconnect.
func (c *Consumer) receive(ctx context.Context, connClosed, chClosed <-chan *amqp.Error, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-connClosed:
			if amqpErr == nil {
				return nil
			}
			return amqpErr
		case amqpErr := <-chClosed:
			if amqpErr == nil {
				return nil
			}
			return amqpErr
		case msg := <-deliveries:
			c.handleDelivery(ctx, msg)
		}
	}
}

func forward(ctx context.Context, in <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	for msg := range in {
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// setupTopology declares the events exchange and the durable queues, and
// binds each queue to its routing key. Declarations are idempotent.
func (c *Consumer) setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		c.exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}

	for _, b := range c.bindings {
		if _, err := ch.QueueDeclare(
			b.Queue,
			true, // durable: survives broker restart
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.Queue, err)
		}
	}
	return nil
}
