package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusen_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fusen_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RealtimeConnections tracks currently open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusen_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	// RealtimeEvents counts events broadcast to board rooms by event name.
	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusen_realtime_events_total",
			Help: "Total number of realtime events broadcast",
		},
		[]string{"event"},
	)
)
