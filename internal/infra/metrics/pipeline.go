package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		stageRunsTotal,
		stageDuration,
		workflowRunsTotal,
		rowsClaimedTotal,
		cycleErrorsTotal,
	)
}

var (
	stageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_runs_total",
			Help: "Workflow stage executions, labeled by stage and outcome.",
		},
		[]string{"stage", "outcome"}, // 'ok', 'error', 'skipped'
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Workflow stage duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	workflowRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_workflow_runs_total",
			Help: "Completed workflow runs, labeled by mode and outcome.",
		},
		[]string{"mode", "outcome"}, // mode: 'content' | 'engagement'
	)

	rowsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_rows_claimed_total",
			Help: "Rows seen by batch retrieval, labeled by result.",
		},
		[]string{"result"}, // 'claimed', 'invalid', 'released'
	)

	cycleErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_cycle_errors_total",
			Help: "Scheduler cycles that ended with an error.",
		},
	)
)

func ObserveStage(stage, outcome string, d time.Duration) {
	stageRunsTotal.WithLabelValues(norm(stage), norm(outcome)).Inc()
	if outcome != "skipped" {
		stageDuration.WithLabelValues(norm(stage)).Observe(d.Seconds())
	}
}

func IncWorkflowRun(mode, outcome string) {
	workflowRunsTotal.WithLabelValues(norm(mode), norm(outcome)).Inc()
}

func AddRows(result string, n int) {
	if n > 0 {
		rowsClaimedTotal.WithLabelValues(norm(result)).Add(float64(n))
	}
}

func IncCycleError() { cycleErrorsTotal.Inc() }
