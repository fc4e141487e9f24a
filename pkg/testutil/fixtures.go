package testutil

import (
	"encoding/json"
	"time"

	auditmodels "gatekeeper/internal/audit/models"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
)

// Epoch is the fixed instant test fixtures are anchored to.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// WorkflowBuilder provides a fluent interface for building test workflows.
type WorkflowBuilder struct {
	workflow *models.Workflow
}

// NewWorkflowBuilder creates a pending two-approver workflow expiring a day after Epoch.
func NewWorkflowBuilder() *WorkflowBuilder {
	return &WorkflowBuilder{
		workflow: &models.Workflow{
			ID:                id.NewWorkflowID(),
			OperationID:       "op-" + id.NewWorkflowID().String()[:8],
			OperationType:     "deploy",
			SecurityLevel:     models.SecurityMedium,
			RequestedBy:       "requester",
			RequiredApprovers: []string{"alice", "bob"},
			CurrentApprovers:  []string{},
			Status:            models.StatusPending,
			ExpiresAt:         Epoch.Add(24 * time.Hour),
			CreatedAt:         Epoch,
			UpdatedAt:         Epoch,
		},
	}
}

func (b *WorkflowBuilder) WithApprovers(approvers ...string) *WorkflowBuilder {
	b.workflow.RequiredApprovers = approvers
	return b
}

func (b *WorkflowBuilder) WithRequester(requester string) *WorkflowBuilder {
	b.workflow.RequestedBy = requester
	return b
}

func (b *WorkflowBuilder) WithStatus(status models.Status) *WorkflowBuilder {
	b.workflow.Status = status
	return b
}

func (b *WorkflowBuilder) RequireAll() *WorkflowBuilder {
	b.workflow.RequireAllApprovers = true
	return b
}

func (b *WorkflowBuilder) CreatedAt(t time.Time) *WorkflowBuilder {
	b.workflow.CreatedAt = t
	b.workflow.UpdatedAt = t
	return b
}

func (b *WorkflowBuilder) ExpiresAt(t time.Time) *WorkflowBuilder {
	b.workflow.ExpiresAt = t
	return b
}

func (b *WorkflowBuilder) WithMetadata(raw string) *WorkflowBuilder {
	b.workflow.Metadata = json.RawMessage(raw)
	return b
}

func (b *WorkflowBuilder) Build() *models.Workflow {
	return b.workflow.Clone()
}

// EventBuilder provides a fluent interface for building stored audit events.
type EventBuilder struct {
	event *auditmodels.Event
}

// NewEventBuilder creates a low-risk login event at Epoch.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: &auditmodels.Event{
			ID:        id.NewEventID(),
			EventType: auditmodels.EventUserLogin,
			UserID:    "user-1",
			RiskLevel: auditmodels.RiskLow,
			IPAddress: "203.0.113.7",
			Timestamp: Epoch,
		},
	}
}

func (b *EventBuilder) WithType(eventType auditmodels.EventType) *EventBuilder {
	b.event.EventType = eventType
	b.event.RiskLevel = auditmodels.ClassifyRisk(eventType, "", b.event.Details)
	return b
}

func (b *EventBuilder) WithUser(userID string) *EventBuilder {
	b.event.UserID = userID
	return b
}

func (b *EventBuilder) WithAgent(agentID string) *EventBuilder {
	b.event.UserID = ""
	b.event.AgentID = agentID
	return b
}

func (b *EventBuilder) WithResource(resourceType, resourceID string) *EventBuilder {
	b.event.ResourceType = resourceType
	b.event.ResourceID = resourceID
	return b
}

func (b *EventBuilder) WithDetails(raw string) *EventBuilder {
	b.event.Details = json.RawMessage(raw)
	return b
}

func (b *EventBuilder) WithRisk(level auditmodels.RiskLevel) *EventBuilder {
	b.event.RiskLevel = level
	return b
}

func (b *EventBuilder) WithUserAgent(ua string) *EventBuilder {
	b.event.UserAgent = ua
	return b
}

func (b *EventBuilder) At(t time.Time) *EventBuilder {
	b.event.Timestamp = t
	return b
}

func (b *EventBuilder) Build() *auditmodels.Event {
	return b.event.Clone()
}
