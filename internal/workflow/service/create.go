package service

import (
	"context"
	"fmt"
	"time"

	auditmodels "gatekeeper/internal/audit/models"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/platform/tracer"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// CreateWorkflow persists a new pending workflow, then audits the request and
// notifies every required approver. requestedBy may be empty for system callers.
func (s *Service) CreateWorkflow(ctx context.Context, requestedBy string, req *models.CreateRequest) (_ *models.Workflow, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.create")
	defer func() { span.End(err) }()

	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	req.Sanitize()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.RequiredApprovers) > s.cfg.MaxApprovers {
		return nil, dErrors.New(dErrors.CodeInvalidRequest,
			fmt.Sprintf("at most %d approvers are allowed", s.cfg.MaxApprovers))
	}
	ttl, err := s.expiration(req.ExpirationHours)
	if err != nil {
		return nil, err
	}
	requireAll := s.cfg.RequireAllApprovers
	if req.RequireAllApprovers != nil {
		requireAll = *req.RequireAllApprovers
	}

	now := s.clock.Now()
	w := &models.Workflow{
		ID:                  id.NewWorkflowID(),
		OperationID:         req.OperationID,
		OperationType:       req.OperationType,
		SecurityLevel:       req.SecurityLevel,
		RequestedBy:         requestedBy,
		RequiredApprovers:   req.RequiredApprovers,
		CurrentApprovers:    []string{},
		RequireAllApprovers: requireAll,
		Status:              models.StatusPending,
		Metadata:            req.Context,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	span.SetAttributes(
		tracer.String(tracer.AttrWorkflowID, w.ID.String()),
		tracer.String(tracer.AttrOperationID, w.OperationID),
	)

	if err := s.store.Create(ctx, w); err != nil {
		return nil, wrapStoreErr(err, "failed to create workflow")
	}

	s.logger.InfoContext(ctx, "workflow created",
		"workflow_id", w.ID,
		"operation_id", w.OperationID,
		"approvers", len(w.RequiredApprovers),
		"expires_at", w.ExpiresAt,
	)
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}

	s.emitAudit(ctx, auditmodels.EventApprovalRequested, requestedBy, w, nil)
	s.notify(ctx, notify.EventApprovalRequested, w.RequiredApprovers, w)
	return w, nil
}

// expiration resolves the requested lifetime. Nil means the configured
// default; zero is allowed and yields an already-expired workflow.
func (s *Service) expiration(hours *int) (time.Duration, error) {
	if hours == nil {
		return s.cfg.DefaultExpiration, nil
	}
	if *hours < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidRequest, "expiration_hours must not be negative")
	}
	ttl := time.Duration(*hours) * time.Hour
	if ttl > s.cfg.MaxExpiration {
		return 0, dErrors.New(dErrors.CodeInvalidRequest,
			fmt.Sprintf("expiration_hours must not exceed %d", int(s.cfg.MaxExpiration/time.Hour)))
	}
	return ttl, nil
}
