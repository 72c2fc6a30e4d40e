package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: kind, result (success, error, skipped, duplicate)
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "workflow",
		Name:      "events_processed_total",
		Help:      "Dispatched domain events by kind and result",
	}, []string{"kind", "result"})

	// Labels: kind
	cascadeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ops",
		Subsystem: "workflow",
		Name:      "cascade_duration_seconds",
		Help:      "Time to run one cascade including locking and audit",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"kind"})

	// Labels: result (sent, failed, dead)
	outboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "workflow",
		Name:      "outbox_publish_total",
		Help:      "Outbox notification delivery attempts by result",
	}, []string{"result"})
)
