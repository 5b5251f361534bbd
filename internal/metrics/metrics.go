package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Presence
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickchat_ws_connections",
			Help: "Open WebSocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickchat_online_users",
			Help: "Users with at least one live connection",
		},
	)

	PresenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickchat_presence_broadcasts_total",
			Help: "Online-set broadcasts after bind/unbind",
		},
	)

	// Delivery
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_messages_sent_total",
			Help: "Messages persisted by send",
		},
		[]string{"kind"}, // "text", "image", "mixed"
	)

	PushResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_push_total",
			Help: "Best-effort push outcomes",
		},
		[]string{"result"}, // "delivered", "offline"
	)

	// Unseen counts
	UnseenResyncs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickchat_unseen_resyncs_total",
			Help: "Unseen-count recomputations from the store",
		},
	)

	UnseenDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickchat_unseen_drift_total",
			Help: "Recomputations that corrected a cached unseen count",
		},
	)

	LoginRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_login_rejected_total",
			Help: "Rejected login attempts",
		},
		[]string{"reason"},
	)
)
