package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/metrics"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/retry"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int

	multiple bool
	requeue  bool
}

func (f *fakeAcknowledger) Ack(_ uint64, multiple bool) error {
	f.acks++
	f.multiple = multiple
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, multiple, requeue bool) error {
	f.nacks++
	f.multiple = multiple
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.rejects++
	f.requeue = requeue
	return nil
}

type fakeHandler struct {
	err     error
	events  []string
	ctxErrs []error
}

func (f *fakeHandler) Handle(ctx context.Context, env *models.EventEnvelope) error {
	f.events = append(f.events, env.Event)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.err
}

func newTestConsumer(h EventHandler, m *metrics.Metrics) *Consumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, "user.events", nil, h, m, logger, retry.Config{})
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(body),
		RoutingKey:   "user.registered",
	}
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	ack := &fakeAcknowledger{}
	handler := &fakeHandler{}
	m := metrics.New()
	c := newTestConsumer(handler, m)

	c.handleDelivery(context.Background(), delivery(ack, `{
		"event": "user.registered",
		"data": {"user_id": 1, "name": "Ann", "email": "ann@x.com"},
		"timestamp": "2024-01-01T00:00:00Z"
	}`))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Zero(t, ack.rejects)
	assert.False(t, ack.multiple)
	require.Equal(t, []string{models.EventUserRegistered}, handler.events)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Consumed)
	assert.Equal(t, int64(1), snap.Acked)
	assert.Zero(t, snap.Rejected)
}

func TestHandleDeliveryRejectsUndecodableBody(t *testing.T) {
	ack := &fakeAcknowledger{}
	handler := &fakeHandler{}
	m := metrics.New()
	c := newTestConsumer(handler, m)

	c.handleDelivery(context.Background(), delivery(ack, `{not json`))

	assert.Equal(t, 1, ack.rejects)
	assert.False(t, ack.requeue)
	assert.Zero(t, ack.acks)
	assert.Empty(t, handler.events)
	assert.Equal(t, int64(1), m.Snapshot().Rejected)
}

func TestHandleDeliveryRejectsUnknownEvent(t *testing.T) {
	ack := &fakeAcknowledger{}
	handler := &fakeHandler{}
	c := newTestConsumer(handler, metrics.New())

	c.handleDelivery(context.Background(), delivery(ack, `{
		"event": "user.password.changed",
		"data": {"user_id": 1}
	}`))

	assert.Equal(t, 1, ack.rejects)
	assert.False(t, ack.requeue)
	assert.Empty(t, handler.events)
}

func TestHandleDeliveryCompletesInFlightMessageDuringShutdown(t *testing.T) {
	ack := &fakeAcknowledger{}
	handler := &fakeHandler{}
	m := metrics.New()
	c := newTestConsumer(handler, m)

	// Shutdown already signalled while the message is in flight.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.handleDelivery(ctx, delivery(ack, `{
		"event": "user.registered",
		"data": {"user_id": 1, "name": "Ann", "email": "ann@x.com"},
		"timestamp": "2024-01-01T00:00:00Z"
	}`))

	// Dispatch must run on a live context and the message must still be
	// acked, not discarded.
	require.Len(t, handler.ctxErrs, 1)
	assert.NoError(t, handler.ctxErrs[0])
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Zero(t, ack.rejects)
	assert.Equal(t, int64(1), m.Snapshot().Acked)
}

func TestHandleDeliveryNacksWithoutRequeueOnDispatchError(t *testing.T) {
	ack := &fakeAcknowledger{}
	handler := &fakeHandler{err: errors.New("mongo unavailable")}
	m := metrics.New()
	c := newTestConsumer(handler, m)

	c.handleDelivery(context.Background(), delivery(ack, `{
		"event": "user.registered",
		"data": {"user_id": 1, "name": "Ann", "email": "ann@x.com"}
	}`))

	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
	assert.False(t, ack.multiple)
	assert.Zero(t, ack.acks)
	assert.Equal(t, int64(1), m.Snapshot().Rejected)
	assert.Zero(t, m.Snapshot().Acked)
}
