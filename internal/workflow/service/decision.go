package service

import (
	"context"
	"time"

	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// RecordDecision stores approverID's verdict and re-evaluates completion.
// Checks run in order: existence, pending, expiry, authorization. A workflow
// found past its deadline is expired inside the same transaction and the call
// fails with WorkflowExpired. A repeat decision by the same approver replaces
// the earlier one.
func (s *Service) RecordDecision(ctx context.Context, workflowID id.WorkflowID, approverID string, req *models.DecisionRequest) (_ *models.StatusSnapshot, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.record_decision",
		tracer.String(tracer.AttrWorkflowID, workflowID.String()),
		tracer.String(tracer.AttrApproverID, approverID),
	)
	defer func() { span.End(err) }()
	start := time.Now()

	if approverID == "" {
		return nil, errMissingCaller
	}
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	req.Sanitize()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		snap      *models.StatusSnapshot
		workflow  *models.Workflow
		expired   bool
		completed bool
	)
	txErr := s.tx.RunInTx(ctx, workflowID, func(ctx context.Context, st Store) error {
		w, err := st.FindByID(ctx, workflowID)
		if err != nil {
			return wrapStoreErr(err, "failed to load workflow")
		}
		now := s.clock.Now()

		if w.Status != models.StatusPending {
			return errNotPending
		}
		if w.IsExpired(now) {
			// Commit the expiry; the caller still gets WorkflowExpired below.
			if err := expireInTx(ctx, st, w, now); err != nil {
				return err
			}
			workflow, expired = w, true
			return nil
		}
		if !w.IsRequiredApprover(approverID) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not an approver of this workflow")
		}

		decision := &models.Decision{
			WorkflowID: w.ID,
			ApproverID: approverID,
			Verdict:    req.Decision,
			Conditions: req.Conditions,
			Feedback:   req.Feedback,
			DecidedAt:  now,
		}
		if err := st.SaveDecision(ctx, decision); err != nil {
			return wrapStoreErr(err, "failed to save decision")
		}
		decisions, err := st.ListDecisions(ctx, w.ID)
		if err != nil {
			return wrapStoreErr(err, "failed to load decisions")
		}

		outcome := models.Evaluate(w, decisions)
		w.CurrentApprovers = outcome.Approved
		if w.CurrentApprovers == nil {
			w.CurrentApprovers = []string{}
		}
		w.UpdatedAt = now
		if outcome.IsComplete {
			w.Status = outcome.Status
			w.CompletedAt = &now
			completed = true
		}
		if err := st.Update(ctx, w); err != nil {
			return wrapStoreErr(err, "failed to update workflow")
		}

		workflow = w
		snap = models.Snapshot(w, decisions, now)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if expired {
		s.completed(ctx, "", workflow, nil)
		return nil, errExpired
	}

	s.logger.InfoContext(ctx, "decision recorded",
		"workflow_id", workflowID,
		"approver_id", approverID,
		"decision", req.Decision,
		"status", workflow.Status,
	)
	span.SetAttributes(tracer.String(tracer.AttrStatus, string(workflow.Status)))
	if s.metrics != nil {
		s.metrics.IncrementDecision(string(req.Decision))
		s.metrics.ObserveDecision(start)
	}
	if completed {
		s.completed(ctx, approverID, workflow, func(d *auditDetails) {
			d.ApprovedBy = workflow.CurrentApprovers
			d.Decision = req.Decision
		})
	}
	return snap, nil
}

// expireInTx moves a pending workflow to Expired. It must run inside RunInTx.
func expireInTx(ctx context.Context, st Store, w *models.Workflow, now time.Time) error {
	w.Status = models.StatusExpired
	w.UpdatedAt = now
	w.CompletedAt = &now
	if err := st.Update(ctx, w); err != nil {
		return wrapStoreErr(err, "failed to expire workflow")
	}
	return nil
}
