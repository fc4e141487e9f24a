// Package app assembles the gatekeeper service from configuration. It is the
// composition root shared by cmd/server and the end-to-end suite.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"gatekeeper/internal/audit/alerting"
	"gatekeeper/internal/audit/ingest"
	auditmetrics "gatekeeper/internal/audit/metrics"
	auditservice "gatekeeper/internal/audit/service"
	auditstore "gatekeeper/internal/audit/store"
	jwttoken "gatekeeper/internal/jwt_token"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/database"
	"gatekeeper/internal/platform/health"
	"gatekeeper/internal/platform/kafka"
	"gatekeeper/internal/platform/kafka/consumer"
	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/internal/platform/metrics"
	redisclient "gatekeeper/internal/platform/redis"
	"gatekeeper/internal/platform/scheduler"
	"gatekeeper/internal/platform/tracer"
	workflowmetrics "gatekeeper/internal/workflow/metrics"
	workflowservice "gatekeeper/internal/workflow/service"
	workflowstore "gatekeeper/internal/workflow/store"
	"gatekeeper/migrations"
	"gatekeeper/pkg/platform/circuit"
	"gatekeeper/pkg/platform/clock"
)

const (
	producerCloseTimeout = 5 * time.Second
	brokerCheckTimeout   = 2 * time.Second
	poolStatsInterval    = 15 * time.Second
	readHeaderTimeout    = 10 * time.Second
)

// App is a fully wired service. Build it with New, serve it with Run.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	tracer   tracer.Tracer
	registry *prometheus.Registry

	pool       *database.Pool
	redis      *redisclient.Client
	producer   *producer.Producer
	consumer   *consumer.Consumer
	dispatcher *notify.Dispatcher
	scheduler  *scheduler.Scheduler
	health     *health.Handler
	router     chi.Router
	alertSinks []alerting.Sink

	Workflows *workflowservice.Service
	Audit     *auditservice.Service
	Tokens    *jwttoken.JWTService

	closeOnce sync.Once
}

type Option func(*App)

// WithClock replaces the system clock for the engine and audit service.
func WithClock(c clock.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// WithAlertSink adds a destination for security alerts next to the log and Kafka sinks.
func WithAlertSink(sink alerting.Sink) Option {
	return func(a *App) {
		a.alertSinks = append(a.alertSinks, sink)
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(a *App) {
		a.tracer = t
	}
}

// New connects to every configured backend and wires the services. Backends
// left unconfigured fall back to in-process implementations. On error every
// connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  clock.System(),
		tracer: tracer.NewOTel(),
	}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry = metrics.NewRegistry(health.Version, cfg.Server.Environment)
	a.health = health.New(cfg.Server.Environment)
	a.Tokens = jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if cfg.DevSigningKey() {
		logger.WarnContext(ctx, "using development JWT signing key")
	}

	workflows, auditEvents, tx, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	windows, err := a.openAlertWindows(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.openProducer(ctx); err != nil {
		return nil, err
	}

	auditMetrics := auditmetrics.New(a.registry)
	detector := alerting.NewDetector(windows, a.alertSink(),
		alerting.WithRules(alerting.Rules(alerting.Thresholds{
			FailedLoginThreshold:      cfg.Audit.FailedLoginThreshold,
			FailedLoginWindow:         cfg.Audit.FailedLoginWindow,
			PermissionDeniedThreshold: cfg.Audit.PermissionDeniedThreshold,
			PermissionDeniedWindow:    cfg.Audit.PermissionDeniedWindow,
		})),
		alerting.WithLogger(logger),
		alerting.WithMetrics(auditMetrics),
	)
	a.Audit = auditservice.New(auditEvents, auditservice.Config{
		QueryMaxLimit: cfg.Audit.QueryMaxLimit,
		ArchiveAfter:  cfg.Audit.ArchiveAfter,
		Retention:     cfg.Audit.Retention,
		ReportTopN:    cfg.Audit.ReportTopN,
		MaxRange:      cfg.Audit.ReportMaxRange,
	},
		auditservice.WithDetector(detector),
		auditservice.WithClock(a.clock),
		auditservice.WithLogger(logger),
		auditservice.WithMetrics(auditMetrics),
		auditservice.WithTracer(a.tracer),
	)

	a.dispatcher = notify.NewDispatcher(a.notifyTransport(),
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithBreaker(circuit.New("notify",
			circuit.WithFailureThreshold(cfg.Notify.BreakerThreshold),
			circuit.WithCooldown(cfg.Notify.BreakerCooldown),
		)),
		notify.WithAsyncBuffer(cfg.Notify.BufferSize),
		notify.WithLogger(logger),
		notify.WithMetrics(notify.NewMetrics(a.registry)),
	)

	engineOpts := []workflowservice.Option{
		workflowservice.WithAuditLogger(a.Audit),
		workflowservice.WithNotifier(a.dispatcher),
		workflowservice.WithClock(a.clock),
		workflowservice.WithLogger(logger),
		workflowservice.WithMetrics(workflowmetrics.New(a.registry)),
		workflowservice.WithTracer(a.tracer),
	}
	if tx != nil {
		engineOpts = append(engineOpts, workflowservice.WithTx(tx))
	}
	a.Workflows = workflowservice.New(workflows, workflowservice.Config{
		DefaultExpiration:   cfg.Workflow.DefaultExpiration,
		MaxExpiration:       cfg.Workflow.MaxExpiration,
		MaxApprovers:        cfg.Workflow.MaxApprovers,
		RequireAllApprovers: cfg.Workflow.RequireAllApprovers,
		ReminderInterval:    cfg.Workflow.ReminderInterval,
		SweepBatchSize:      cfg.Workflow.SweepBatchSize,
		TxTimeout:           cfg.Workflow.TxTimeout,
	}, engineOpts...)

	if err := a.openConsumer(auditMetrics); err != nil {
		return nil, err
	}
	if err := a.buildScheduler(); err != nil {
		return nil, err
	}
	if a.router, err = a.buildRouter(); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "gatekeeper assembled",
		"in_memory", cfg.InMemory(),
		"redis", a.redis != nil,
		"kafka", cfg.KafkaEnabled(),
		"require_all_approvers", cfg.Workflow.RequireAllApprovers,
	)
	return a, nil
}

// openStores returns the workflow and audit stores. With Postgres it also
// applies migrations and returns the transactional boundary for the engine.
func (a *App) openStores(ctx context.Context) (workflowservice.Store, auditservice.Store, workflowservice.StoreTx, error) {
	if a.cfg.InMemory() {
		a.logger.InfoContext(ctx, "DATABASE_URL not set, using in-memory stores")
		return workflowstore.NewInMemory(), auditstore.NewInMemory(), nil, nil
	}

	pool, err := database.New(ctx, database.Config{
		URL:             a.cfg.Database.URL,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
	}, a.registry)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	a.health.RegisterCheck("postgres", pool.Health)

	if a.cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, pool.DB(), migrations.FS, a.logger); err != nil {
			return nil, nil, nil, err
		}
	}
	return workflowstore.NewPostgres(pool.DB()),
		auditstore.NewPostgres(pool.DB()),
		newWorkflowPostgresTx(pool.DB(), a.cfg.Workflow.TxTimeout),
		nil
}

func (a *App) openAlertWindows(ctx context.Context) (alerting.WindowStore, error) {
	client, err := redisclient.New(ctx, redisclient.Config{
		URL:          a.cfg.Redis.URL,
		PoolSize:     a.cfg.Redis.PoolSize,
		MinIdleConns: a.cfg.Redis.MinIdleConns,
		DialTimeout:  a.cfg.Redis.DialTimeout,
		ReadTimeout:  a.cfg.Redis.ReadTimeout,
		WriteTimeout: a.cfg.Redis.WriteTimeout,
	}, a.registry)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		return alerting.NewMemoryWindow(), nil
	}
	a.redis = client
	a.health.RegisterCheck("redis", client.Health)
	return alerting.NewRedisWindow(client.Client), nil
}

func (a *App) openProducer(context.Context) error {
	if !a.cfg.KafkaEnabled() {
		return nil
	}
	p, err := producer.New(producer.Config{
		Brokers:         a.cfg.Kafka.Brokers,
		ClientID:        "gatekeeper",
		Acks:            a.cfg.Kafka.Acks,
		Retries:         a.cfg.Kafka.Retries,
		DeliveryTimeout: a.cfg.Kafka.DeliveryTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	a.producer = p
	a.health.RegisterCheck("kafka", kafka.BrokerCheck(a.cfg.Kafka.Brokers, brokerCheckTimeout))
	return nil
}

func (a *App) notifyTransport() notify.Transport {
	if a.producer == nil {
		return notify.NewLogTransport(a.logger)
	}
	return notify.NewKafkaTransport(a.producer, a.cfg.Kafka.NotifyTopic)
}

// alertSink always logs; with Kafka alerts are also published.
func (a *App) alertSink() alerting.Sink {
	sinks := alerting.MultiSink{alerting.NewLogSink(a.logger)}
	if a.producer != nil {
		sinks = append(sinks, alerting.NewKafkaSink(a.producer, a.cfg.Kafka.AlertTopic))
	}
	return append(sinks, a.alertSinks...)
}

func (a *App) openConsumer(m *auditmetrics.Metrics) error {
	if !a.cfg.KafkaEnabled() {
		return nil
	}
	c, err := consumer.New(consumer.Config{
		Brokers: a.cfg.Kafka.Brokers,
		GroupID: a.cfg.Kafka.AuditIngestGroup,
		Topics:  []string{a.cfg.Kafka.AuditIngestTopic},
	}, ingest.NewHandler(a.Audit, a.logger, m), a.logger)
	if err != nil {
		return fmt.Errorf("create audit ingest consumer: %w", err)
	}
	a.consumer = c
	return nil
}

// Handler returns the HTTP handler with every route and middleware mounted.
func (a *App) Handler() http.Handler { return a.router }

// Run serves HTTP, the background jobs and the ingest consumer until ctx is
// cancelled or one of them fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gctx)
		})
	}

	err := g.Wait()
	a.Close()
	a.logger.Info("gatekeeper stopped")
	return err
}

// Close releases the notifier, producer and connections. It is safe to call
// more than once and on a partially built App.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.dispatcher != nil {
			a.dispatcher.Close()
		}
		if a.producer != nil {
			a.producer.Close(producerCloseTimeout)
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.logger.Warn("redis close failed", "error", err)
			}
		}
		if a.pool != nil {
			if err := a.pool.Close(); err != nil {
				a.logger.Warn("database close failed", "error", err)
			}
		}
	})
}
