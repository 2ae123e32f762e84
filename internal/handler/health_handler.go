package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// BrokerStatus reports whether the message broker connection is usable.
type BrokerStatus interface {
	IsClosed() bool
}

// Ready checks the database and, when configured, the broker in parallel.
func Ready(db *sql.DB, broker BrokerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dbResult := make(chan HealthCheckResult, 1)
		go func() {
			dbResult <- checkDatabase(ctx, db)
		}()

		checks := map[string]HealthCheckResult{}
		if broker != nil {
			checks["rabbitmq"] = checkBroker(broker)
		}
		checks["database"] = <-dbResult

		status, code := "ready", http.StatusOK
		for _, check := range checks {
			if check.Status != "up" {
				status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

func checkBroker(broker BrokerStatus) HealthCheckResult {
	if broker.IsClosed() {
		return HealthCheckResult{Status: "down", Error: "connection closed"}
	}
	return HealthCheckResult{Status: "up"}
}
