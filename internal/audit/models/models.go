package models

import (
	"encoding/json"
	"slices"
	"time"

	id "gatekeeper/pkg/domain"
)

// EventType is the closed set of security-relevant actions the audit trail records.
type EventType string

const (
	EventUserLogin           EventType = "user_login"
	EventUserLogout          EventType = "user_logout"
	EventLoginFailed         EventType = "login_failed"
	EventPermissionDenied    EventType = "permission_denied"
	EventUnauthorizedAccess  EventType = "unauthorized_access"
	EventApprovalRequested   EventType = "approval_requested"
	EventApprovalGranted     EventType = "approval_granted"
	EventApprovalDenied      EventType = "approval_denied"
	EventApprovalExpired     EventType = "approval_expired"
	EventApprovalCancelled   EventType = "approval_cancelled"
	EventSecurityViolation   EventType = "security_violation"
	EventConfigurationChange EventType = "configuration_change"
	EventDataAccess          EventType = "data_access"
	EventDataExport          EventType = "data_export"
	EventAgentAction         EventType = "agent_action"
)

// AllEventTypes lists every known type in a stable order.
var AllEventTypes = []EventType{
	EventUserLogin, EventUserLogout, EventLoginFailed, EventPermissionDenied,
	EventUnauthorizedAccess, EventApprovalRequested, EventApprovalGranted,
	EventApprovalDenied, EventApprovalExpired, EventApprovalCancelled,
	EventSecurityViolation, EventConfigurationChange, EventDataAccess,
	EventDataExport, EventAgentAction,
}

func (t EventType) IsValid() bool {
	return slices.Contains(AllEventTypes, t)
}

// RiskLevel is a coarse, ordered severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// AllRiskLevels is ordered from least to most severe.
var AllRiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank orders risk levels; unknown levels rank below Low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

func (r RiskLevel) IsValid() bool { return r.Rank() > 0 }

// IsElevated reports High or Critical, the levels counted as risk events in reports.
func (r RiskLevel) IsElevated() bool { return r.Rank() >= RiskHigh.Rank() }

// Event is an immutable audit record. Only the archival flag ever changes.
type Event struct {
	ID           id.EventID      `json:"id"`
	EventType    EventType       `json:"event_type"`
	UserID       string          `json:"user_id,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	RiskLevel    RiskLevel       `json:"risk_level"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Archived     bool            `json:"archived"`
	ArchivedAt   *time.Time      `json:"archived_at,omitempty"`
}

// Clone returns a copy whose details buffer is not shared.
func (e *Event) Clone() *Event {
	c := *e
	if e.Details != nil {
		c.Details = append(json.RawMessage(nil), e.Details...)
	}
	if e.ArchivedAt != nil {
		t := *e.ArchivedAt
		c.ArchivedAt = &t
	}
	return &c
}

// Resource renders the resource as "type:id", or "" when absent.
func (e *Event) Resource() string {
	if e.ResourceType == "" && e.ResourceID == "" {
		return ""
	}
	return e.ResourceType + ":" + e.ResourceID
}

// Actor is the user, falling back to the agent.
func (e *Event) Actor() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.AgentID
}

// Filter selects events for QueryEvents. Zero values mean "any".
type Filter struct {
	EventTypes      []EventType `json:"event_types,omitempty"`
	UserID          string      `json:"user_id,omitempty"`
	AgentID         string      `json:"agent_id,omitempty"`
	ResourceType    string      `json:"resource_type,omitempty"`
	ResourceID      string      `json:"resource_id,omitempty"`
	RiskLevels      []RiskLevel `json:"risk_levels,omitempty"`
	Start           *time.Time  `json:"start,omitempty"`
	End             *time.Time  `json:"end,omitempty"`
	IncludeArchived bool        `json:"include_archived"`
	Limit           int         `json:"limit"`
	Offset          int         `json:"offset"`
}

// QueryResult is one page of events, newest first.
type QueryResult struct {
	Events []*Event `json:"events"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// ArchiveResult summarizes one retention pass.
type ArchiveResult struct {
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
}
