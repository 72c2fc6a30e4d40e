package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: type, result (created, deduplicated)
	alertProposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "alerts",
		Name:      "proposals_total",
		Help:      "Alert proposals by outcome",
	}, []string{"type", "result"})

	// Labels: detector, status (success, error)
	detectorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "alerts",
		Name:      "detector_runs_total",
		Help:      "Detector executions by status",
	}, []string{"detector", "status"})
)
