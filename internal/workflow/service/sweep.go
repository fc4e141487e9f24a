package service

import (
	"context"
	"errors"
	"fmt"

	"gatekeeper/internal/notify"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

const (
	sweepExpirations = "expirations"
	sweepReminders   = "reminders"
)

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SweepExpirations expires every pending workflow whose deadline has passed,
// up to the configured batch size. Each workflow is handled in its own
// transaction; one failure never stops the rest. Per-item failures are
// returned joined after the pass completes.
func (s *Service) SweepExpirations(ctx context.Context) (_ SweepResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.sweep_expirations")
	defer func() { span.End(err) }()

	now := s.clock.Now()
	due, err := s.store.ListExpired(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return SweepResult{}, wrapStoreErr(err, "failed to list expired workflows")
	}

	result := SweepResult{Scanned: len(due)}
	var errs []error
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		transitioned, err := s.expireOne(ctx, candidate.ID)
		switch {
		case err != nil:
			result.Failed++
			errs = append(errs, fmt.Errorf("expire %s: %w", candidate.ID, err))
			s.logger.ErrorContext(ctx, "expiration sweep item failed",
				"workflow_id", candidate.ID,
				"operation_id", candidate.OperationID,
				"error", err,
			)
		case transitioned:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	s.finishSweep(ctx, span, sweepExpirations, result)
	return result, errors.Join(errs...)
}

// expireOne re-reads the workflow under the lock so a decision that committed
// first wins; it reports whether this call performed the transition.
func (s *Service) expireOne(ctx context.Context, workflowID id.WorkflowID) (bool, error) {
	var workflow *models.Workflow
	err := s.tx.RunInTx(ctx, workflowID, func(ctx context.Context, st Store) error {
		w, err := st.FindByID(ctx, workflowID)
		if err != nil {
			return wrapStoreErr(err, "failed to load workflow")
		}
		now := s.clock.Now()
		if w.Status != models.StatusPending || !w.IsExpired(now) {
			return nil
		}
		if err := expireInTx(ctx, st, w, now); err != nil {
			return err
		}
		workflow = w
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeWorkflowNotPending) {
			return false, nil
		}
		return false, err
	}
	if workflow == nil {
		return false, nil
	}
	s.completed(ctx, "", workflow, nil)
	return true, nil
}

// SweepReminders re-notifies approvers who have not decided on workflows whose
// last reminder (or creation) is older than the reminder interval, and stamps
// lastReminderAt. Only workflows still pending at write time are touched.
func (s *Service) SweepReminders(ctx context.Context) (_ SweepResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.sweep_reminders")
	defer func() { span.End(err) }()

	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.ReminderInterval)
	due, err := s.store.ListReminderDue(ctx, now, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return SweepResult{}, wrapStoreErr(err, "failed to list workflows due for reminders")
	}

	result := SweepResult{Scanned: len(due)}
	var errs []error
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sent, err := s.remindOne(ctx, candidate.ID)
		switch {
		case err != nil:
			result.Failed++
			errs = append(errs, fmt.Errorf("remind %s: %w", candidate.ID, err))
			s.logger.ErrorContext(ctx, "reminder sweep item failed",
				"workflow_id", candidate.ID,
				"operation_id", candidate.OperationID,
				"error", err,
			)
		case sent:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	s.finishSweep(ctx, span, sweepReminders, result)
	return result, errors.Join(errs...)
}

func (s *Service) remindOne(ctx context.Context, workflowID id.WorkflowID) (bool, error) {
	var (
		workflow *models.Workflow
		pending  []string
	)
	err := s.tx.RunInTx(ctx, workflowID, func(ctx context.Context, st Store) error {
		w, err := st.FindByID(ctx, workflowID)
		if err != nil {
			return wrapStoreErr(err, "failed to load workflow")
		}
		now := s.clock.Now()
		if !w.IsPending(now) || !w.ReminderDue(now.Add(-s.cfg.ReminderInterval)) {
			return nil
		}
		decisions, err := st.ListDecisions(ctx, w.ID)
		if err != nil {
			return wrapStoreErr(err, "failed to load decisions")
		}
		outcome := models.Evaluate(w, decisions)
		if len(outcome.Pending) == 0 {
			return nil
		}
		w.LastReminderAt = &now
		w.UpdatedAt = now
		if err := st.Update(ctx, w); err != nil {
			return wrapStoreErr(err, "failed to stamp reminder")
		}
		workflow, pending = w, outcome.Pending
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeWorkflowNotPending) {
			return false, nil
		}
		return false, err
	}
	if workflow == nil {
		return false, nil
	}
	s.notify(ctx, notify.EventReminder, pending, workflow)
	return true, nil
}

func (s *Service) finishSweep(ctx context.Context, span tracer.Span, sweep string, result SweepResult) {
	span.SetAttributes(
		tracer.Int(tracer.AttrSweepItems, result.Processed),
		tracer.Int(tracer.AttrSweepFailed, result.Failed),
	)
	if s.metrics != nil {
		s.metrics.AddSweep(sweep, result.Processed, result.Failed)
	}
	if result.Scanned == 0 {
		return
	}
	s.logger.InfoContext(ctx, "workflow sweep finished",
		"sweep", sweep,
		"scanned", result.Scanned,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
}
