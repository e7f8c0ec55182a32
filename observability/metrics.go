package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Presence metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatdm_active_connections",
			Help: "Live websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatdm_online_users",
			Help: "Users with at least one live connection",
		},
	)

	RejectedHandshakes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdm_rejected_handshakes_total",
			Help: "Websocket handshakes refused by authentication",
		},
	)

	PresenceWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdm_presence_write_failures_total",
			Help: "Best-effort presence writes that failed",
		},
	)

	ReconciledUsers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdm_reconciled_users_total",
			Help: "Users rewritten offline by the presence reconciler",
		},
	)

	// Message metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdm_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"receiver"}, // "online" or "offline"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdm_messages_rejected_total",
			Help: "Total messages refused before or during persistence",
		},
		[]string{"reason"}, // "invalid" or "persistence"
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdm_delivery_failures_total",
			Help: "Events that could not be handed to a connection",
		},
		[]string{"event"},
	)

	// Infrastructure metrics
	PersistenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdm_persistence_latency_seconds",
			Help:    "Message persistence latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)
