// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing an EventID where a WorkflowID is expected.
type (
	WorkflowID uuid.UUID
	EventID    uuid.UUID
)

func NewWorkflowID() WorkflowID { return WorkflowID(uuid.New()) }
func NewEventID() EventID       { return EventID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseWorkflowID(s string) (WorkflowID, error) {
	id, err := parseUUID(s, "workflow ID")
	return WorkflowID(id), err
}

func ParseEventID(s string) (EventID, error) {
	id, err := parseUUID(s, "event ID")
	return EventID(id), err
}

func (id WorkflowID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }

func (id WorkflowID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical strings in JSON and Kafka payloads.

func (id WorkflowID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *WorkflowID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *EventID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// parseUUID is the shared validation logic.
// Nil UUIDs are allowed here so store lookups can return proper not-found errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidRequest, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidRequest, "invalid "+label+" format")
	}
	return id, nil
}
