package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the node's collectors.
	Registry = prometheus.NewRegistry()

	actionsPosted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mp",
			Name:      "actions_posted_total",
			Help:      "Outgoing actions by type and pipeline result.",
		},
		[]string{"type", "result"},
	)

	actionsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mp",
			Name:      "actions_received_total",
			Help:      "Incoming actions by type and final transport record status.",
		},
		[]string{"type", "status"},
	)

	actionSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mp",
			Name:      "action_size_bytes",
			Help:      "Serialized envelope size.",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KiB
		},
		[]string{"type"},
	)

	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mp",
			Name:      "notifications_dropped_total",
			Help:      "Notifications that could not be delivered.",
		},
	)
)

func init() {
	Registry.MustRegister(
		actionsPosted,
		actionsReceived,
		actionSize,
		notificationsDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordPosted(actionType, result string) {
	actionsPosted.WithLabelValues(actionType, result).Inc()
}

func RecordReceived(actionType, status string) {
	actionsReceived.WithLabelValues(actionType, status).Inc()
}

func ObserveSize(actionType string, size int) {
	actionSize.WithLabelValues(actionType).Observe(float64(size))
}

func RecordNotificationDropped() {
	notificationsDropped.Inc()
}
