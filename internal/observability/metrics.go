package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for inbound chat payloads and outbound deliveries.
const (
	DropProtocol     = "protocol"
	DropStorage      = "storage"
	DropSlowConsumer = "slow_consumer"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of registered WebSocket connections",
		},
	)

	WebSocketUsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_users_online",
			Help: "Number of users with at least one registered connection",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of payloads queued for delivery, by recipient role",
		},
		[]string{"role"},
	)

	WebSocketMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of chat payloads dropped, by reason",
		},
		[]string{"reason"},
	)

	ChatMessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Total number of chat messages written to the message store",
		},
	)

	// Cleanup metrics
	ListingsCleanedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_cleaned_total",
			Help: "Total number of sold listings removed, by trigger",
		},
		[]string{"trigger"},
	)

	OrphanedImagesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphaned_images_removed_total",
			Help: "Total number of image files removed without a matching listing",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordDBStats copies the pool statistics into the db_connections gauges.
func RecordDBStats(stats sql.DBStats) {
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
}

// ObserveQuery returns a func that records the elapsed query time when called.
func ObserveQuery(operation, table string) func() {
	timer := prometheus.NewTimer(DBQueryDuration.WithLabelValues(operation, table))
	return func() { timer.ObserveDuration() }
}
