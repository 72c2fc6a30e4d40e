package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels: analysis
var analysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ops",
	Subsystem: "analytics",
	Name:      "analysis_runs_total",
	Help:      "Correlation analyses computed",
}, []string{"analysis"})
