package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
	outcomeDropped = "dropped"
)

type Metrics struct {
	Deliveries  *prometheus.CounterVec
	SendLatency prometheus.Histogram
	QueueDepth  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_notifications_total",
			Help: "Notification deliveries, labeled by event type and outcome",
		}, []string{"event_type", "outcome"}),
		SendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_notification_send_seconds",
			Help:    "Latency of individual notification sends in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_notification_queue_depth",
			Help: "Notifications waiting in the async buffer",
		}),
	}
}

func (m *Metrics) recordOutcome(eventType EventType, outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(string(eventType), outcome).Inc()
}

func (m *Metrics) observeLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SendLatency.Observe(d.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
