// Package alerting detects suspicious patterns in the audit stream.
//
// Rules are either immediate (no window) or count matching events per actor
// over a trailing window. A windowed rule fires once its count reaches the
// threshold and is then suppressed for one window per actor, so a burst
// produces one alert rather than one per event.
package alerting

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/audit/metrics"
	"gatekeeper/internal/audit/models"
	id "gatekeeper/pkg/domain"
)

const (
	RuleFailedLogins      = "multiple_failed_logins"
	RulePermissionDenials = "multiple_permission_denials"
	RuleCriticalEvent     = "critical_event"
)

// Rule describes one alerting pattern. A zero Window makes the rule immediate.
type Rule struct {
	Name      string
	Message   string
	Threshold int
	Window    time.Duration
	Match     func(*models.Event) bool
}

func (r Rule) immediate() bool { return r.Window <= 0 }

// Alert is what a sink receives when a rule fires.
type Alert struct {
	Rule          string           `json:"rule"`
	Message       string           `json:"message"`
	UserID        string           `json:"user_id,omitempty"`
	EventID       id.EventID       `json:"event_id"`
	EventType     models.EventType `json:"event_type"`
	RiskLevel     models.RiskLevel `json:"risk_level"`
	Count         int              `json:"count"`
	WindowSeconds int              `json:"window_seconds,omitempty"`
	TriggeredAt   time.Time        `json:"triggered_at"`
}

// WindowStore keeps per-key sliding windows and suppression markers.
type WindowStore interface {
	// Add records member at time at and returns how many members fall in (at-window, at].
	Add(ctx context.Context, key, member string, at time.Time, window time.Duration) (int, error)
	// TrySuppress claims key for ttl. It returns false while a previous claim is live.
	TrySuppress(ctx context.Context, key string, ttl time.Duration, now time.Time) (bool, error)
}

// Sink delivers alerts.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// Thresholds configures the windowed rules.
type Thresholds struct {
	FailedLoginThreshold      int
	FailedLoginWindow         time.Duration
	PermissionDeniedThreshold int
	PermissionDeniedWindow    time.Duration
}

// DefaultThresholds are five failed logins in five minutes and three
// permission denials in ten minutes.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLoginThreshold:      5,
		FailedLoginWindow:         5 * time.Minute,
		PermissionDeniedThreshold: 3,
		PermissionDeniedWindow:    10 * time.Minute,
	}
}

// Rules builds the standard rule set from t. Zero fields take the defaults.
func Rules(t Thresholds) []Rule {
	def := DefaultThresholds()
	if t.FailedLoginThreshold <= 0 {
		t.FailedLoginThreshold = def.FailedLoginThreshold
	}
	if t.FailedLoginWindow <= 0 {
		t.FailedLoginWindow = def.FailedLoginWindow
	}
	if t.PermissionDeniedThreshold <= 0 {
		t.PermissionDeniedThreshold = def.PermissionDeniedThreshold
	}
	if t.PermissionDeniedWindow <= 0 {
		t.PermissionDeniedWindow = def.PermissionDeniedWindow
	}
	return []Rule{
		{
			Name:      RuleFailedLogins,
			Message:   "multiple failed logins",
			Threshold: t.FailedLoginThreshold,
			Window:    t.FailedLoginWindow,
			Match:     models.IsFailedLogin,
		},
		{
			Name:      RulePermissionDenials,
			Message:   "multiple permission denials",
			Threshold: t.PermissionDeniedThreshold,
			Window:    t.PermissionDeniedWindow,
			Match: func(e *models.Event) bool {
				return e.EventType == models.EventPermissionDenied
			},
		},
		{
			Name:      RuleCriticalEvent,
			Message:   "critical risk event",
			Threshold: 1,
			Match: func(e *models.Event) bool {
				return e.RiskLevel == models.RiskCritical
			},
		},
	}
}

// Detector evaluates rules against each logged event.
type Detector struct {
	rules   []Rule
	windows WindowStore
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Detector)

func WithRules(rules []Rule) Option {
	return func(d *Detector) {
		d.rules = rules
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

func NewDetector(windows WindowStore, sink Sink, opts ...Option) *Detector {
	d := &Detector{
		rules:   Rules(DefaultThresholds()),
		windows: windows,
		sink:    sink,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Inspect runs every matching rule against e and returns the alerts that fired.
// Failures are logged and counted; they never reach the caller.
func (d *Detector) Inspect(ctx context.Context, e *models.Event) []Alert {
	var fired []Alert
	for _, rule := range d.rules {
		if !rule.Match(e) {
			continue
		}
		alert, ok := d.evaluate(ctx, rule, e)
		if !ok {
			continue
		}
		if d.metrics != nil {
			d.metrics.IncrementAlert(rule.Name)
		}
		if err := d.sink.Send(ctx, alert); err != nil {
			d.failed(ctx, "sink", rule, e, err)
		}
		fired = append(fired, alert)
	}
	return fired
}

func (d *Detector) evaluate(ctx context.Context, rule Rule, e *models.Event) (Alert, bool) {
	if rule.immediate() {
		return newAlert(rule, e, 1), true
	}
	actor := e.Actor()
	if actor == "" {
		return Alert{}, false
	}

	count, err := d.windows.Add(ctx, windowKey(rule.Name, actor), e.ID.String(), e.Timestamp, rule.Window)
	if err != nil {
		d.failed(ctx, "window", rule, e, err)
		return Alert{}, false
	}
	if count < rule.Threshold {
		return Alert{}, false
	}

	claimed, err := d.windows.TrySuppress(ctx, suppressKey(rule.Name, actor), rule.Window, e.Timestamp)
	if err != nil {
		d.failed(ctx, "window", rule, e, err)
		return Alert{}, false
	}
	if !claimed {
		return Alert{}, false
	}
	return newAlert(rule, e, count), true
}

func (d *Detector) failed(ctx context.Context, stage string, rule Rule, e *models.Event, err error) {
	d.logger.ErrorContext(ctx, "alerting failed",
		"stage", stage,
		"rule", rule.Name,
		"event_id", e.ID,
		"event_type", e.EventType,
		"error", err,
	)
	if d.metrics != nil {
		d.metrics.IncrementAlertFailure(stage)
	}
}

func newAlert(rule Rule, e *models.Event, count int) Alert {
	return Alert{
		Rule:          rule.Name,
		Message:       rule.Message,
		UserID:        e.Actor(),
		EventID:       e.ID,
		EventType:     e.EventType,
		RiskLevel:     e.RiskLevel,
		Count:         count,
		WindowSeconds: int(rule.Window / time.Second),
		TriggeredAt:   e.Timestamp,
	}
}

func windowKey(rule, actor string) string {
	return "alert:window:" + rule + ":" + actor
}

func suppressKey(rule, actor string) string {
	return "alert:suppress:" + rule + ":" + actor
}
