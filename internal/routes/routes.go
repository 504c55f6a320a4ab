package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/repository"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/metrics"
)

// StatsSource is the read-side capability behind /stats.
type StatsSource interface {
	Stats(ctx context.Context, f repository.Filter) (*repository.Stats, error)
}

// NewRouter wires the lightweight health/stats endpoints so the service can
// be monitored. The full query surface lives in the API gateway, not here.
func NewRouter(store StatsSource, m *metrics.Metrics, started time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/notifications/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"service":        "notification-service",
			"status":         "healthy",
			"uptime_seconds": int(time.Since(started).Seconds()),
			"timestamp":      time.Now().UTC(),
		})
	})

	mux.HandleFunc("/api/notifications/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stats, err := store.Stats(ctx, repository.Filter{})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error": "failed to compute stats",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"service":       "notification-service",
			"notifications": stats,
			"pipeline":      m.Snapshot(),
			"timestamp":     time.Now().UTC(),
		})
	})

	mux.Handle("/metrics", m.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
