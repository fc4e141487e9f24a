package service

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/audit/alerting"
	"gatekeeper/internal/audit/metrics"
	"gatekeeper/internal/audit/models"
	"gatekeeper/internal/platform/tracer"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/clock"
)

// Store is the append-only audit event log.
// Error Contract:
//   - Append returns sentinel.ErrConflict when the event id was already recorded
//   - Get returns sentinel.ErrNotFound for an unknown event id
//   - Other failures are returned wrapped
type Store interface {
	Append(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, eventID id.EventID) (*models.Event, error)
	// Query returns one page of matching events, newest first, and the total match count.
	Query(ctx context.Context, f models.Filter) ([]*models.Event, int, error)
	// ListRange returns every event in [start, end), archived included, oldest first.
	ListRange(ctx context.Context, start, end time.Time) ([]*models.Event, error)
	// MarkArchived flags unarchived events older than olderThan and returns how many changed.
	MarkArchived(ctx context.Context, olderThan, at time.Time) (int, error)
	// DeleteArchived removes archived events older than olderThan. Unarchived events are never removed.
	DeleteArchived(ctx context.Context, olderThan time.Time) (int, error)
}

// Detector inspects each recorded event for alerting patterns.
type Detector interface {
	Inspect(ctx context.Context, e *models.Event) []alerting.Alert
}

type Config struct {
	QueryDefaultLimit int
	QueryMaxLimit     int
	// ArchiveAfter is the age at which events are flagged archived.
	ArchiveAfter time.Duration
	// Retention is the age at which archived events are deleted.
	Retention  time.Duration
	ReportTopN int
	// MaxRange caps end-start for reports and exports.
	MaxRange time.Duration
	// AlertTimeout bounds pattern detection for one event.
	AlertTimeout time.Duration
}

const (
	defaultQueryLimit    = 100
	defaultQueryMaxLimit = 1000
	defaultArchiveAfter  = 90 * 24 * time.Hour
	defaultRetention     = 365 * 24 * time.Hour
	defaultReportTopN    = 10
	defaultAlertTimeout  = 2 * time.Second
	defaultMaxRange      = 366 * 24 * time.Hour
)

func (c *Config) applyDefaults() {
	if c.QueryMaxLimit <= 0 {
		c.QueryMaxLimit = defaultQueryMaxLimit
	}
	if c.QueryDefaultLimit <= 0 {
		c.QueryDefaultLimit = min(defaultQueryLimit, c.QueryMaxLimit)
	}
	if c.ArchiveAfter <= 0 {
		c.ArchiveAfter = defaultArchiveAfter
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.ReportTopN <= 0 {
		c.ReportTopN = defaultReportTopN
	}
	if c.MaxRange <= 0 {
		c.MaxRange = defaultMaxRange
	}
	if c.AlertTimeout <= 0 {
		c.AlertTimeout = defaultAlertTimeout
	}
}

// Service records, queries and summarizes audit events.
type Service struct {
	store    Store
	cfg      Config
	detector Detector
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

type Option func(*Service)

func WithDetector(d Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, cfg Config, opts ...Option) *Service {
	cfg.applyDefaults()
	svc := &Service{
		store:  store,
		cfg:    cfg,
		clock:  clock.System(),
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}
