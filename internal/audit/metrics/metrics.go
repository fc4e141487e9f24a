package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsLogged     *prometheus.CounterVec
	DuplicateEvents  prometheus.Counter
	AlertsFired      *prometheus.CounterVec
	AlertFailures    *prometheus.CounterVec
	ArchivedEvents   prometheus.Counter
	DeletedEvents    prometheus.Counter
	IngestedMessages *prometheus.CounterVec
}

// New registers audit metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsLogged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_audit_events_total",
			Help: "Audit events recorded, labeled by event type and risk level",
		}, []string{"event_type", "risk_level"}),
		DuplicateEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_duplicate_events_total",
			Help: "Events whose id was already recorded and were skipped",
		}),
		AlertsFired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_audit_alerts_total",
			Help: "Security alerts raised, labeled by rule",
		}, []string{"rule"}),
		AlertFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_audit_alert_failures_total",
			Help: "Alerting failures, labeled by stage (window, sink)",
		}, []string{"stage"}),
		ArchivedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_archived_events_total",
			Help: "Events marked archived by retention passes",
		}),
		DeletedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_deleted_events_total",
			Help: "Archived events deleted after the retention period",
		}),
		IngestedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_audit_ingest_messages_total",
			Help: "Messages read from the ingest topic, labeled by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementLogged(eventType, risk string) {
	m.EventsLogged.WithLabelValues(eventType, risk).Inc()
}

func (m *Metrics) IncrementDuplicate() {
	m.DuplicateEvents.Inc()
}

func (m *Metrics) IncrementAlert(rule string) {
	m.AlertsFired.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncrementAlertFailure(stage string) {
	m.AlertFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) AddArchive(archived, deleted int) {
	m.ArchivedEvents.Add(float64(archived))
	m.DeletedEvents.Add(float64(deleted))
}

func (m *Metrics) IncrementIngested(outcome string) {
	m.IngestedMessages.WithLabelValues(outcome).Inc()
}
