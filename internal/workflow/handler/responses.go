package handler

import (
	"encoding/json"
	"time"

	"gatekeeper/internal/workflow/models"
)

// WorkflowResponse is the wire shape of a workflow.
type WorkflowResponse struct {
	ID                  string          `json:"id"`
	OperationID         string          `json:"operation_id"`
	OperationType       string          `json:"operation_type,omitempty"`
	SecurityLevel       string          `json:"security_level"`
	RequestedBy         string          `json:"requested_by,omitempty"`
	RequiredApprovers   []string        `json:"required_approvers"`
	CurrentApprovers    []string        `json:"current_approvers"`
	RequireAllApprovers bool            `json:"require_all_approvers"`
	Status              string          `json:"status"`
	Context             json.RawMessage `json:"context,omitempty"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	ExpiresAt           time.Time       `json:"expires_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

type DecisionResponse struct {
	ApproverID string    `json:"approver_id"`
	Decision   string    `json:"decision"`
	Conditions []string  `json:"conditions,omitempty"`
	Feedback   string    `json:"feedback,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// StatusResponse is returned by status reads and decisions.
type StatusResponse struct {
	Workflow         *WorkflowResponse  `json:"workflow"`
	PendingApprovers []string           `json:"pending_approvers"`
	Decisions        []DecisionResponse `json:"decisions"`
	IsComplete       bool               `json:"is_complete"`
	CanProceed       bool               `json:"can_proceed"`
	NextActions      []string           `json:"next_actions"`
}

type ListResponse struct {
	Workflows []*WorkflowResponse `json:"workflows"`
	Total     int                 `json:"total"`
}

func toWorkflowResponse(w *models.Workflow) *WorkflowResponse {
	return &WorkflowResponse{
		ID:                  w.ID.String(),
		OperationID:         w.OperationID,
		OperationType:       w.OperationType,
		SecurityLevel:       string(w.SecurityLevel),
		RequestedBy:         w.RequestedBy,
		RequiredApprovers:   w.RequiredApprovers,
		CurrentApprovers:    nonNil(w.CurrentApprovers),
		RequireAllApprovers: w.RequireAllApprovers,
		Status:              string(w.Status),
		Context:             w.Metadata,
		CancelReason:        w.CancelReason,
		ExpiresAt:           w.ExpiresAt,
		CreatedAt:           w.CreatedAt,
		UpdatedAt:           w.UpdatedAt,
		CompletedAt:         w.CompletedAt,
	}
}

func toStatusResponse(s *models.StatusSnapshot) *StatusResponse {
	resp := &StatusResponse{
		Workflow:         toWorkflowResponse(s.Workflow),
		PendingApprovers: nonNil(s.PendingApprovers),
		Decisions:        make([]DecisionResponse, 0, len(s.Decisions)),
		IsComplete:       s.IsComplete,
		CanProceed:       s.CanProceed,
		NextActions:      nonNil(s.NextActions),
	}
	for _, d := range s.Decisions {
		resp.Decisions = append(resp.Decisions, DecisionResponse{
			ApproverID: d.ApproverID,
			Decision:   string(d.Verdict),
			Conditions: d.Conditions,
			Feedback:   d.Feedback,
			DecidedAt:  d.DecidedAt,
		})
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
