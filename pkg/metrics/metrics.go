package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runmate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// NotificationsCreated counts persisted notification documents by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runmate_notifications_created_total",
			Help: "Total number of notification documents created",
		},
		[]string{"type"},
	)

	// MarkReadWrites counts remote mark-as-read writes by origin (server|inbox) and result (success|failure|noop).
	MarkReadWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runmate_mark_read_writes_total",
			Help: "Total number of mark-as-read writes",
		},
		[]string{"origin", "result"},
	)

	// FeedSubscriptions tracks live notification feeds currently open.
	FeedSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runmate_feed_subscriptions",
			Help: "Number of open live notification feeds",
		},
		[]string{"backend"},
	)

	// FeedErrors counts live feeds that terminated with an error.
	FeedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runmate_feed_errors_total",
			Help: "Total number of live notification feeds that failed",
		},
		[]string{"backend"},
	)

	// CorruptPreferences counts local flags that were reset because their stored value was unreadable.
	CorruptPreferences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runmate_corrupt_preferences_total",
			Help: "Total number of persisted preferences reset after corruption",
		},
		[]string{"key"},
	)
)
