package models

import (
	"encoding/json"
	"slices"
	"time"

	id "gatekeeper/pkg/domain"
)

// Status is the lifecycle state of a workflow. Pending is the only
// non-terminal state; every transition leaves Pending exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && s != StatusPending
}

// Verdict is a single approver's answer.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictReject
}

// SecurityLevel is carried through to audit events where it escalates risk.
type SecurityLevel string

const (
	SecurityLow      SecurityLevel = "low"
	SecurityMedium   SecurityLevel = "medium"
	SecurityHigh     SecurityLevel = "high"
	SecurityCritical SecurityLevel = "critical"
)

func (l SecurityLevel) IsValid() bool {
	switch l {
	case SecurityLow, SecurityMedium, SecurityHigh, SecurityCritical:
		return true
	}
	return false
}

// Workflow gates one external operation behind a set of approvers.
type Workflow struct {
	ID                  id.WorkflowID   `json:"id"`
	OperationID         string          `json:"operation_id"`
	OperationType       string          `json:"operation_type,omitempty"`
	SecurityLevel       SecurityLevel   `json:"security_level"`
	RequestedBy         string          `json:"requested_by,omitempty"`
	RequiredApprovers   []string        `json:"required_approvers"`
	CurrentApprovers    []string        `json:"current_approvers"`
	RequireAllApprovers bool            `json:"require_all_approvers"`
	Status              Status          `json:"status"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	ExpiresAt           time.Time       `json:"expires_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	LastReminderAt      *time.Time      `json:"last_reminder_at,omitempty"`
}

// IsExpired reports whether the deadline has passed at now.
// A workflow whose expiresAt equals now is already expired.
func (w *Workflow) IsExpired(now time.Time) bool {
	return !now.Before(w.ExpiresAt)
}

// IsPending reports whether the workflow still accepts decisions at now.
func (w *Workflow) IsPending(now time.Time) bool {
	return w.Status == StatusPending && !w.IsExpired(now)
}

// EffectiveStatus is the status a reader should see: an unswept pending
// workflow past its deadline is reported as expired.
func (w *Workflow) EffectiveStatus(now time.Time) Status {
	if w.Status == StatusPending && w.IsExpired(now) {
		return StatusExpired
	}
	return w.Status
}

func (w *Workflow) IsRequiredApprover(approverID string) bool {
	return slices.Contains(w.RequiredApprovers, approverID)
}

// ReminderDue reports whether the last reminder (or creation) is at or before cutoff.
func (w *Workflow) ReminderDue(cutoff time.Time) bool {
	last := w.CreatedAt
	if w.LastReminderAt != nil {
		last = *w.LastReminderAt
	}
	return !last.After(cutoff)
}

// Clone returns a deep copy safe to hand across store boundaries.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	c.RequiredApprovers = slices.Clone(w.RequiredApprovers)
	c.CurrentApprovers = slices.Clone(w.CurrentApprovers)
	c.Metadata = slices.Clone(w.Metadata)
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	if w.LastReminderAt != nil {
		t := *w.LastReminderAt
		c.LastReminderAt = &t
	}
	return &c
}

// Decision is one approver's verdict. At most one exists per (workflow, approver).
type Decision struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	ApproverID string        `json:"approver_id"`
	Verdict    Verdict       `json:"decision"`
	Conditions []string      `json:"conditions,omitempty"`
	Feedback   string        `json:"feedback,omitempty"`
	DecidedAt  time.Time     `json:"decided_at"`
}

// StatusSnapshot is what callers get back from decisions and status reads.
type StatusSnapshot struct {
	Workflow         *Workflow  `json:"workflow"`
	PendingApprovers []string   `json:"pending_approvers"`
	Decisions        []Decision `json:"decisions"`
	IsComplete       bool       `json:"is_complete"`
	CanProceed       bool       `json:"can_proceed"`
	NextActions      []string   `json:"next_actions"`
}
