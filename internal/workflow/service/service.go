package service

import (
	"context"
	"log/slog"
	"time"

	auditmodels "gatekeeper/internal/audit/models"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/workflow/metrics"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/clock"
	"gatekeeper/pkg/platform/keylock"
)

// Store defines the persistence interface for workflows and their decisions.
// Error Contract:
//   - FindByID returns sentinel.ErrNotFound when the workflow does not exist
//   - Update returns sentinel.ErrConflict when the stored row is no longer pending
//   - Other failures are returned wrapped
type Store interface {
	Create(ctx context.Context, w *models.Workflow) error
	FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error)
	// Update persists a mutation of a workflow that is still pending in the store.
	Update(ctx context.Context, w *models.Workflow) error
	// SaveDecision inserts or replaces the decision for (workflow, approver).
	SaveDecision(ctx context.Context, d *models.Decision) error
	ListDecisions(ctx context.Context, workflowID id.WorkflowID) ([]models.Decision, error)
	// ListByParticipant returns workflows the user requested or must approve,
	// newest first. An empty statuses slice means any status.
	ListByParticipant(ctx context.Context, userID string, statuses []models.Status) ([]*models.Workflow, error)
	// ListExpired returns pending workflows with expiresAt <= now, oldest deadline first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Workflow, error)
	// ListReminderDue returns pending, unexpired workflows whose last reminder
	// (or creation) is at or before cutoff.
	ListReminderDue(ctx context.Context, now, cutoff time.Time, limit int) ([]*models.Workflow, error)
}

// AuditLogger records lifecycle events in the audit trail.
type AuditLogger interface {
	LogEvent(ctx context.Context, req *auditmodels.LogRequest) (*auditmodels.Event, error)
}

// Notifier delivers best-effort notifications to workflow participants.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, template notify.Notification) error
}

// Config holds the engine's tunables.
type Config struct {
	DefaultExpiration   time.Duration
	MaxExpiration       time.Duration
	MaxApprovers        int
	RequireAllApprovers bool
	ReminderInterval    time.Duration
	SweepBatchSize      int
	TxTimeout           time.Duration
	// SideEffectTimeout bounds each audit write made after a transition commits.
	SideEffectTimeout time.Duration
}

const (
	defaultExpiration        = 24 * time.Hour
	defaultMaxExpiration     = 30 * 24 * time.Hour
	defaultMaxApprovers      = 10
	defaultReminderInterval  = 24 * time.Hour
	defaultSweepBatchSize    = 500
	defaultSideEffectTimeout = 5 * time.Second
)

func (c *Config) applyDefaults() {
	if c.DefaultExpiration <= 0 {
		c.DefaultExpiration = defaultExpiration
	}
	if c.MaxExpiration <= 0 {
		c.MaxExpiration = defaultMaxExpiration
	}
	if c.MaxApprovers <= 0 {
		c.MaxApprovers = defaultMaxApprovers
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = defaultReminderInterval
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaultSweepBatchSize
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = defaultTxTimeout
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = defaultSideEffectTimeout
	}
}

// Service is the approval workflow engine. Store state is authoritative;
// audit and notification are side effects that never fail a committed transition.
type Service struct {
	store    Store
	tx       StoreTx
	cfg      Config
	auditor  AuditLogger
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

type Option func(*Service)

// WithTx replaces the default in-process per-workflow lock, typically with a
// database transaction that row-locks the workflow.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithAuditLogger(a AuditLogger) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
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
	if svc.tx == nil {
		svc.tx = &lockedStoreTx{
			locks:   keylock.New(0),
			store:   store,
			timeout: cfg.TxTimeout,
			metrics: svc.metrics,
		}
	}
	return svc
}
