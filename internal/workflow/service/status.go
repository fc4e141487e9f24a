package service

import (
	"context"
	"slices"

	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// GetStatus returns the current snapshot. A pending workflow past its deadline
// is expired on the spot, so readers never wait for the sweep to see Expired.
func (s *Service) GetStatus(ctx context.Context, workflowID id.WorkflowID) (_ *models.StatusSnapshot, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.get_status",
		tracer.String(tracer.AttrWorkflowID, workflowID.String()))
	defer func() { span.End(err) }()

	w, err := s.store.FindByID(ctx, workflowID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load workflow")
	}
	now := s.clock.Now()
	if w.Status == models.StatusPending && w.IsExpired(now) {
		if expired, ok := s.expireIfDue(ctx, workflowID); ok {
			w = expired
		}
	}

	decisions, err := s.store.ListDecisions(ctx, workflowID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load decisions")
	}
	span.SetAttributes(tracer.String(tracer.AttrStatus, string(w.EffectiveStatus(now))))
	return models.Snapshot(w, decisions, now), nil
}

// CancelWorkflow withdraws a pending workflow. The requester or any required
// approver may cancel.
func (s *Service) CancelWorkflow(ctx context.Context, workflowID id.WorkflowID, cancelledBy string, req *models.CancelRequest) (_ *models.Workflow, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.cancel",
		tracer.String(tracer.AttrWorkflowID, workflowID.String()))
	defer func() { span.End(err) }()

	if cancelledBy == "" {
		return nil, errMissingCaller
	}
	if req == nil {
		req = &models.CancelRequest{}
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		workflow *models.Workflow
		expired  bool
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
			if err := expireInTx(ctx, st, w, now); err != nil {
				return err
			}
			workflow, expired = w, true
			return nil
		}
		if cancelledBy != w.RequestedBy && !w.IsRequiredApprover(cancelledBy) {
			return dErrors.New(dErrors.CodeForbidden, "caller may not cancel this workflow")
		}

		w.Status = models.StatusCancelled
		w.CancelReason = req.Reason
		w.UpdatedAt = now
		w.CompletedAt = &now
		if err := st.Update(ctx, w); err != nil {
			return wrapStoreErr(err, "failed to cancel workflow")
		}
		workflow = w
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if expired {
		s.completed(ctx, "", workflow, nil)
		return nil, errNotPending
	}
	s.completed(ctx, cancelledBy, workflow, func(d *auditDetails) {
		d.Reason = workflow.CancelReason
	})
	return workflow, nil
}

// ListUserWorkflows returns workflows the user requested or must approve,
// newest first, optionally filtered by status. Workflows past their deadline
// are reported, and persisted, as Expired.
func (s *Service) ListUserWorkflows(ctx context.Context, userID string, status *models.Status) (_ []*models.Workflow, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.list_user")
	defer func() { span.End(err) }()

	if userID == "" {
		return nil, errMissingCaller
	}
	var statuses []models.Status
	if status != nil {
		if !status.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidRequest, "invalid status filter")
		}
		statuses = []models.Status{*status}
		if *status == models.StatusExpired {
			// Unswept expirations are still stored as pending.
			statuses = append(statuses, models.StatusPending)
		}
	}

	workflows, err := s.store.ListByParticipant(ctx, userID, statuses)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list workflows")
	}

	now := s.clock.Now()
	out := make([]*models.Workflow, 0, len(workflows))
	for _, w := range workflows {
		if w.Status == models.StatusPending && w.IsExpired(now) {
			if expired, ok := s.expireIfDue(ctx, w.ID); ok {
				w = expired
			} else {
				w = w.Clone()
				w.Status = models.StatusExpired
			}
		}
		if status != nil && w.Status != *status {
			continue
		}
		out = append(out, w)
	}
	slices.SortStableFunc(out, func(a, b *models.Workflow) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	span.SetAttributes(tracer.Int("workflow.count", len(out)))
	return out, nil
}

// expireIfDue expires the workflow if it is still pending and past its
// deadline when re-read under the lock. It returns the workflow as stored
// afterwards and whether that read succeeded. Failures are logged; readers
// fall back to the effective status.
func (s *Service) expireIfDue(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, bool) {
	var (
		workflow     *models.Workflow
		transitioned bool
	)
	err := s.tx.RunInTx(ctx, workflowID, func(ctx context.Context, st Store) error {
		w, err := st.FindByID(ctx, workflowID)
		if err != nil {
			return wrapStoreErr(err, "failed to load workflow")
		}
		now := s.clock.Now()
		if w.Status == models.StatusPending && w.IsExpired(now) {
			if err := expireInTx(ctx, st, w, now); err != nil {
				return err
			}
			transitioned = true
		}
		workflow = w
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "lazy expiration failed",
			"workflow_id", workflowID,
			"error", err,
		)
		return nil, false
	}
	if transitioned {
		s.completed(ctx, "", workflow, nil)
	}
	return workflow, true
}
