// Package metrics implements the ambient Prometheus surface named in
// SPEC_FULL.md's DOMAIN STACK: process-lifetime counters and
// histograms over PROC's own concurrency, retry, and allocation
// behavior. Grounded in the teacher's
// internal/infra/telemetry/prometheus.go (promauto.With(registerer),
// one *Vec field per observation, a typed Observe* method per metric).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PROC is the metric set every PROC component reports into.
type PROC struct {
	fanoutInFlight     *prometheus.GaugeVec
	fanoutTaskDuration *prometheus.HistogramVec
	retryAttempts      *prometheus.CounterVec
	classifiedErrors   *prometheus.CounterVec
	toolInvocations    *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec
	allocatedBudget    *prometheus.GaugeVec
}

// New constructs a PROC metric set registered against registerer. A
// nil registerer defaults to prometheus.DefaultRegisterer, matching
// the teacher's NewPrometheusMetrics.
func New(registerer prometheus.Registerer) *PROC {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PROC{
		fanoutInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "proc_fanout_in_flight",
				Help: "Current number of started-but-not-finished fan-out tasks",
			},
			[]string{"tool"},
		),
		fanoutTaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proc_fanout_task_duration_seconds",
				Help:    "Duration of one fan-out task, including all retries",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		retryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proc_retry_attempts_total",
				Help: "Total retry attempts made by the retry engine, by provider",
			},
			[]string{"provider"},
		),
		classifiedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proc_classified_errors_total",
				Help: "Total classified adapter errors, by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		toolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proc_tool_invocations_total",
				Help: "Total tool invocations, by tool name and outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proc_tool_duration_seconds",
				Help:    "Duration of a full tool invocation, end to end",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		allocatedBudget: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "proc_allocated_budget_per_item",
				Help: "Most recent per-item budget allocation (tokens or comments), by tool",
			},
			[]string{"tool"},
		),
	}
}

func (m *PROC) FanoutStarted(tool string) { m.fanoutInFlight.WithLabelValues(tool).Inc() }
func (m *PROC) FanoutFinished(tool string, d time.Duration) {
	m.fanoutInFlight.WithLabelValues(tool).Dec()
	m.fanoutTaskDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *PROC) RetryAttempted(provider string) {
	m.retryAttempts.WithLabelValues(provider).Inc()
}

func (m *PROC) ErrorClassified(provider, kind string) {
	m.classifiedErrors.WithLabelValues(provider, kind).Inc()
}

func (m *PROC) ToolInvoked(tool string, isError bool, d time.Duration) {
	outcome := "success"
	if isError {
		outcome = "error"
	}
	m.toolInvocations.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *PROC) BudgetAllocated(tool string, perItem int) {
	m.allocatedBudget.WithLabelValues(tool).Set(float64(perItem))
}
