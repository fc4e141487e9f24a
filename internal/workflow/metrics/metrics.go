package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	WorkflowsCreated   prometheus.Counter
	Decisions          *prometheus.CounterVec
	Completions        *prometheus.CounterVec
	SweepItems         *prometheus.CounterVec
	SweepFailures      *prometheus.CounterVec
	SideEffectFailures *prometheus.CounterVec
	DecisionDuration   prometheus.Histogram
	LockWait           prometheus.Histogram
}

// New registers workflow metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkflowsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_workflows_created_total",
			Help: "Total number of approval workflows created",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_workflow_decisions_total",
			Help: "Approver decisions recorded, labeled by verdict",
		}, []string{"decision"}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_workflow_completions_total",
			Help: "Workflows that left pending, labeled by terminal status",
		}, []string{"status"}),
		SweepItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_workflow_sweep_items_total",
			Help: "Workflows processed by a sweep, labeled by sweep",
		}, []string{"sweep"}),
		SweepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_workflow_sweep_failures_total",
			Help: "Workflows a sweep failed to process, labeled by sweep",
		}, []string{"sweep"}),
		SideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_workflow_side_effect_failures_total",
			Help: "Audit or notification failures after a committed transition",
		}, []string{"kind"}),
		DecisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_workflow_decision_duration_seconds",
			Help:    "Duration of RecordDecision including the store transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_workflow_lock_wait_seconds",
			Help:    "Time spent waiting for the per-workflow lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.WorkflowsCreated.Inc()
}

func (m *Metrics) IncrementDecision(decision string) {
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementCompletion(status string) {
	m.Completions.WithLabelValues(status).Inc()
}

func (m *Metrics) AddSweep(sweep string, processed, failed int) {
	m.SweepItems.WithLabelValues(sweep).Add(float64(processed))
	m.SweepFailures.WithLabelValues(sweep).Add(float64(failed))
}

func (m *Metrics) IncrementSideEffectFailure(kind string) {
	m.SideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDecision(start time.Time) {
	m.DecisionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	m.LockWait.Observe(d.Seconds())
}
