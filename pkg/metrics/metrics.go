package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics is a small in-memory counter set for the notification pipeline.
type Metrics struct {
	consumed         atomic.Int64
	acked            atomic.Int64
	rejected         atomic.Int64
	webhookDelivered atomic.Int64
	webhookFailed    atomic.Int64
	summaries        atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConsumed()         { m.consumed.Add(1) }
func (m *Metrics) IncAcked()            { m.acked.Add(1) }
func (m *Metrics) IncRejected()         { m.rejected.Add(1) }
func (m *Metrics) IncWebhookDelivered() { m.webhookDelivered.Add(1) }
func (m *Metrics) IncWebhookFailed()    { m.webhookFailed.Add(1) }
func (m *Metrics) IncSummaries()        { m.summaries.Add(1) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Consumed         int64 `json:"consumed"`
	Acked            int64 `json:"acked"`
	Rejected         int64 `json:"rejected"`
	WebhookDelivered int64 `json:"webhook_delivered"`
	WebhookFailed    int64 `json:"webhook_failed"`
	Summaries        int64 `json:"summaries"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Consumed:         m.consumed.Load(),
		Acked:            m.acked.Load(),
		Rejected:         m.rejected.Load(),
		WebhookDelivered: m.webhookDelivered.Load(),
		WebhookFailed:    m.webhookFailed.Load(),
		Summaries:        m.summaries.Load(),
	}
}

// Handler exposes the counters as a small JSON document, so the service can
// be monitored without a heavy metrics dependency.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
