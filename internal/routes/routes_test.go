package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/repository"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/metrics"
)

type fakeStats struct {
	stats *repository.Stats
	err   error
}

func (f *fakeStats) Stats(context.Context, repository.Filter) (*repository.Stats, error) {
	return f.stats, f.err
}

func TestHealthEndpoint(t *testing.T) {
	router := NewRouter(&fakeStats{}, metrics.New(), time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "notification-service", body["service"])
}

func TestStatsEndpoint(t *testing.T) {
	src := &fakeStats{stats: &repository.Stats{Total: 12, Sent: 10, Failed: 2}}
	m := metrics.New()
	m.IncConsumed()
	m.IncAcked()
	router := NewRouter(src, m, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Notifications repository.Stats `json:"notifications"`
		Pipeline      metrics.Snapshot `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body.Notifications.Total)
	assert.Equal(t, int64(10), body.Notifications.Sent)
	assert.Equal(t, int64(1), body.Pipeline.Consumed)
	assert.Equal(t, int64(1), body.Pipeline.Acked)
}

func TestStatsEndpointStoreFailure(t *testing.T) {
	src := &fakeStats{err: errors.New("mongo down")}
	router := NewRouter(src, metrics.New(), time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to compute stats")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncWebhookDelivered()
	router := NewRouter(&fakeStats{}, m, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.WebhookDelivered)
}
