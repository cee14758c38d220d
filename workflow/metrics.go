package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Orchestrator metrics. Registered on the default registry so a serving
// front-end can expose them alongside its own.
var (
	taskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foreman",
		Subsystem: "workflow",
		Name:      "task_outcomes_total",
		Help:      "Task attempt outcomes by decision.",
	}, []string{"outcome"}) // approved, rejected, failed

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "foreman",
		Subsystem: "workflow",
		Name:      "stage_duration_seconds",
		Help:      "Duration of develop and review stages.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"}) // develop, review

	plansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foreman",
		Subsystem: "workflow",
		Name:      "plans_finished_total",
		Help:      "Plans reaching a terminal status.",
	}, []string{"status"}) // completed, failed
)
