package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: job, result (success, error, skipped)
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by result",
	}, []string{"job", "result"})

	// Labels: job
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ops",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Wall time of one scheduled job run",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
)
