// Package metrics provides Prometheus metrics for the clipveil pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No per-job labels here: job IDs would explode cardinality.

var (
	// JobsTotal counts processing jobs by terminal state.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipveil_jobs_total",
		Help: "Total number of processing jobs, by terminal state.",
	}, []string{"state"})

	// StageDegradedTotal counts stages that degraded to a no-op.
	StageDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipveil_stage_degraded_total",
		Help: "Total number of stages that degraded to a no-op, by stage.",
	}, []string{"stage"})

	// ExportRetriesTotal counts export attempts retried at lower quality.
	ExportRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipveil_export_retries_total",
		Help: "Total number of exports retried with the low quality preset.",
	})

	// ExportDurationSeconds observes wall-clock duration of the export stage.
	ExportDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipveil_export_duration_seconds",
		Help:    "Wall-clock duration of the export stage.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
