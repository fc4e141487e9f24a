// Package notify delivers best-effort notifications to workflow participants.
// Delivery never affects workflow state: failures are logged and counted.
package notify

import (
	"context"
	"encoding/json"
	"time"

	id "gatekeeper/pkg/domain"
)

// EventType names the lifecycle moment a notification describes.
type EventType string

const (
	EventApprovalRequested EventType = "approval_requested"
	EventReminder          EventType = "reminder"
	EventGranted           EventType = "granted"
	EventDenied            EventType = "denied"
	EventExpired           EventType = "expired"
	EventCancelled         EventType = "cancelled"
)

// Notification is one message for one recipient.
type Notification struct {
	RecipientID string          `json:"recipient_id"`
	EventType   EventType       `json:"event_type"`
	WorkflowID  id.WorkflowID   `json:"workflow_id"`
	OperationID string          `json:"operation_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Transport sends a single notification.
type Transport interface {
	Send(ctx context.Context, n Notification) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, n Notification) error

func (f TransportFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }
