package service

import (
	"context"
	"encoding/json"
	"slices"

	auditmodels "gatekeeper/internal/audit/models"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/workflow/models"
	"gatekeeper/pkg/requestcontext"
)

// Side effects run after the transition has committed. Each one is isolated:
// failures are logged and counted, and the caller still sees success.

const resourceTypeWorkflow = "approval_workflow"

// auditDetails is the details payload of workflow audit events.
// security_level is read back by risk classification.
type auditDetails struct {
	OperationID       string         `json:"operation_id"`
	OperationType     string         `json:"operation_type,omitempty"`
	SecurityLevel     string         `json:"security_level,omitempty"`
	Status            models.Status  `json:"status"`
	RequiredApprovers []string       `json:"required_approvers,omitempty"`
	ApprovedBy        []string       `json:"approved_by,omitempty"`
	Decision          models.Verdict `json:"decision,omitempty"`
	Reason            string         `json:"reason,omitempty"`
}

func (s *Service) emitAudit(ctx context.Context, eventType auditmodels.EventType, actor string, w *models.Workflow, extra func(*auditDetails)) {
	if s.auditor == nil {
		return
	}
	d := auditDetails{
		OperationID:       w.OperationID,
		OperationType:     w.OperationType,
		SecurityLevel:     string(w.SecurityLevel),
		Status:            w.Status,
		RequiredApprovers: w.RequiredApprovers,
	}
	if extra != nil {
		extra(&d)
	}
	details, err := json.Marshal(d)
	if err != nil {
		s.sideEffectFailed(ctx, "audit", w, err)
		return
	}

	// The triggering request may already be finished; the audit write should not be.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SideEffectTimeout)
	defer cancel()

	_, err = s.auditor.LogEvent(auditCtx, &auditmodels.LogRequest{
		EventType:    eventType,
		UserID:       actor,
		ResourceType: resourceTypeWorkflow,
		ResourceID:   w.ID.String(),
		Details:      details,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
	})
	if err != nil {
		s.sideEffectFailed(ctx, "audit", w, err)
	}
}

func (s *Service) notify(ctx context.Context, eventType notify.EventType, recipients []string, w *models.Workflow) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	template := notify.Notification{
		EventType:   eventType,
		WorkflowID:  w.ID,
		OperationID: w.OperationID,
		Metadata:    w.Metadata,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.notifier.Notify(ctx, recipients, template); err != nil {
		s.sideEffectFailed(ctx, "notify", w, err)
	}
}

func (s *Service) sideEffectFailed(ctx context.Context, kind string, w *models.Workflow, err error) {
	s.logger.ErrorContext(ctx, "workflow side effect failed",
		"kind", kind,
		"workflow_id", w.ID,
		"operation_id", w.OperationID,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.IncrementSideEffectFailure(kind)
	}
}

// participants are the required approvers plus the requester, once each.
func participants(w *models.Workflow) []string {
	out := slices.Clone(w.RequiredApprovers)
	if w.RequestedBy != "" && !slices.Contains(out, w.RequestedBy) {
		out = append(out, w.RequestedBy)
	}
	return out
}

// completed reports a transition out of pending: audit, notify and count it.
func (s *Service) completed(ctx context.Context, actor string, w *models.Workflow, extra func(*auditDetails)) {
	var (
		auditType auditmodels.EventType
		noteType  notify.EventType
	)
	switch w.Status {
	case models.StatusApproved:
		auditType, noteType = auditmodels.EventApprovalGranted, notify.EventGranted
	case models.StatusRejected:
		auditType, noteType = auditmodels.EventApprovalDenied, notify.EventDenied
	case models.StatusExpired:
		auditType, noteType = auditmodels.EventApprovalExpired, notify.EventExpired
	case models.StatusCancelled:
		auditType, noteType = auditmodels.EventApprovalCancelled, notify.EventCancelled
	default:
		return
	}

	s.logger.InfoContext(ctx, "workflow completed",
		"workflow_id", w.ID,
		"operation_id", w.OperationID,
		"status", w.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementCompletion(string(w.Status))
	}
	s.emitAudit(ctx, auditType, actor, w, extra)
	s.notify(ctx, noteType, participants(w), w)
}
