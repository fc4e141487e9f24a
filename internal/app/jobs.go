package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/platform/scheduler"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

// Job names, also used as the scheduler metric label.
const (
	JobExpirationSweep = "workflow_expiration_sweep"
	JobReminderSweep   = "workflow_reminder_sweep"
	JobAuditArchive    = "audit_archive"
	JobRedisPoolStats  = "redis_pool_stats"
)

func (a *App) buildScheduler() error {
	a.scheduler = scheduler.New(
		scheduler.WithLogger(a.logger),
		scheduler.WithRegistry(a.registry),
	)

	// The expiration sweep runs on start so workflows that lapsed while the
	// service was down are closed promptly.
	if err := a.scheduler.Every(JobExpirationSweep, a.cfg.Workflow.ExpirationSweepInterval, func(ctx context.Context) error {
		_, err := a.Workflows.SweepExpirations(ctx)
		return err
	}, scheduler.WithRunOnStart()); err != nil {
		return err
	}
	if err := a.scheduler.Every(JobReminderSweep, a.cfg.Workflow.ReminderSweepInterval, func(ctx context.Context) error {
		_, err := a.Workflows.SweepReminders(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := a.scheduler.Every(JobAuditArchive, a.cfg.Audit.ArchiveInterval, func(ctx context.Context) error {
		_, err := a.Audit.ArchiveOldLogs(ctx)
		return err
	}); err != nil {
		return err
	}
	if a.redis != nil {
		if err := a.scheduler.Every(JobRedisPoolStats, poolStatsInterval, a.redis.RecordPoolStats); err != nil {
			return err
		}
	}
	return nil
}

// RoleOperator may run a background job on demand.
const RoleOperator = "operator"

// JobRunResponse reports a job run triggered over HTTP.
type JobRunResponse struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}

// handleRunJob runs the named job once, synchronously, under the job's own
// timeout. Its schedule is unaffected.
func (a *App) handleRunJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	requestID := requestcontext.RequestID(ctx)

	if err := a.scheduler.RunNow(ctx, name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "job %s is not registered", name))
			return
		}
		a.logger.ErrorContext(ctx, "manual job run failed", "job", name, "error", err, "request_id", requestID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "job "+name+" failed"))
		return
	}

	a.logger.InfoContext(ctx, "manual job run completed",
		"job", name,
		"user_id", requestcontext.UserID(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, JobRunResponse{Job: name, Status: "completed"})
}
