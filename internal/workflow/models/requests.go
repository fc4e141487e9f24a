package models

import (
	"encoding/json"
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/validation"
)

// CreateRequest asks for a new approval workflow.
type CreateRequest struct {
	OperationID       string          `json:"operation_id"`
	OperationType     string          `json:"operation_type"`
	RequiredApprovers []string        `json:"required_approvers"`
	SecurityLevel     SecurityLevel   `json:"security_level"`
	Context           json.RawMessage `json:"context,omitempty"`
	// ExpirationHours nil means the configured default; 0 creates an already-expired workflow.
	ExpirationHours     *int  `json:"expiration_hours,omitempty"`
	RequireAllApprovers *bool `json:"require_all_approvers,omitempty"`
}

func (r *CreateRequest) Sanitize() {
	r.OperationID = strings.TrimSpace(r.OperationID)
	r.OperationType = strings.TrimSpace(r.OperationType)
	for i, a := range r.RequiredApprovers {
		r.RequiredApprovers[i] = strings.TrimSpace(a)
	}
}

func (r *CreateRequest) Normalize() {
	r.SecurityLevel = SecurityLevel(strings.ToLower(strings.TrimSpace(string(r.SecurityLevel))))
	if r.SecurityLevel == "" {
		r.SecurityLevel = SecurityMedium
	}
}

// Validate checks the request shape. Configured bounds (approver count,
// expiration ceiling) are enforced by the service.
func (r *CreateRequest) Validate() error {
	if r.OperationID == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "operation_id is required")
	}
	if err := validation.CheckStringLength("operation_id", r.OperationID, validation.MaxOperationIDLength); err != nil {
		return err
	}
	if len(r.RequiredApprovers) == 0 {
		return dErrors.New(dErrors.CodeInvalidRequest, "required_approvers must not be empty")
	}
	seen := make(map[string]struct{}, len(r.RequiredApprovers))
	for _, a := range r.RequiredApprovers {
		if a == "" {
			return dErrors.New(dErrors.CodeInvalidRequest, "approver id must not be empty")
		}
		if _, dup := seen[a]; dup {
			return dErrors.New(dErrors.CodeInvalidRequest, "duplicate approver: "+a)
		}
		seen[a] = struct{}{}
	}
	if err := validation.CheckEachStringLength("approver id", r.RequiredApprovers, validation.MaxApproverIDLength); err != nil {
		return err
	}
	if !r.SecurityLevel.IsValid() {
		return dErrors.New(dErrors.CodeInvalidRequest, "invalid security_level")
	}
	if r.ExpirationHours != nil && *r.ExpirationHours < 0 {
		return dErrors.New(dErrors.CodeInvalidRequest, "expiration_hours must not be negative")
	}
	if len(r.Context) > 0 && !json.Valid(r.Context) {
		return dErrors.New(dErrors.CodeInvalidRequest, "context must be valid JSON")
	}
	return nil
}

// DecisionRequest carries one approver's verdict; the approver is the caller.
type DecisionRequest struct {
	Decision   Verdict  `json:"decision"`
	Conditions []string `json:"conditions,omitempty"`
	Feedback   string   `json:"feedback,omitempty"`
}

func (r *DecisionRequest) Sanitize() {
	r.Feedback = strings.TrimSpace(r.Feedback)
	kept := r.Conditions[:0]
	for _, c := range r.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	r.Conditions = kept
}

func (r *DecisionRequest) Normalize() {
	r.Decision = Verdict(strings.ToLower(strings.TrimSpace(string(r.Decision))))
}

func (r *DecisionRequest) Validate() error {
	if !r.Decision.IsValid() {
		return dErrors.New(dErrors.CodeInvalidRequest, "decision must be approve or reject")
	}
	if err := validation.CheckSliceCount("conditions", len(r.Conditions), validation.MaxConditions); err != nil {
		return err
	}
	if err := validation.CheckEachStringLength("condition", r.Conditions, validation.MaxConditionLength); err != nil {
		return err
	}
	return validation.CheckStringLength("feedback", r.Feedback, validation.MaxFeedbackLength)
}

// CancelRequest withdraws a pending workflow.
type CancelRequest struct {
	Reason string `json:"reason"`
}

func (r *CancelRequest) Sanitize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *CancelRequest) Validate() error {
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}
