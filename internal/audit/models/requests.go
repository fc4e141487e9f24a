package models

import (
	"encoding/json"
	"strings"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// LogRequest records one event. RiskLevel is optional; when empty it is classified.
// EventID is optional; producers that retry set it so duplicates are recorded once.
type LogRequest struct {
	EventID      string          `json:"event_id,omitempty"`
	EventType    EventType       `json:"event_type"`
	UserID       string          `json:"user_id,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	RiskLevel    RiskLevel       `json:"risk_level,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
}

func (r *LogRequest) Sanitize() {
	r.EventID = strings.TrimSpace(r.EventID)
	r.UserID = strings.TrimSpace(r.UserID)
	r.AgentID = strings.TrimSpace(r.AgentID)
	r.ResourceType = strings.TrimSpace(r.ResourceType)
	r.ResourceID = strings.TrimSpace(r.ResourceID)
	r.IPAddress = strings.TrimSpace(r.IPAddress)
}

func (r *LogRequest) Normalize() {
	r.EventType = EventType(strings.ToLower(strings.TrimSpace(string(r.EventType))))
	r.RiskLevel = RiskLevel(strings.ToLower(strings.TrimSpace(string(r.RiskLevel))))
}

func (r *LogRequest) Validate() error {
	if !r.EventType.IsValid() {
		return dErrors.New(dErrors.CodeInvalidRequest, "unknown event_type: "+string(r.EventType))
	}
	if r.RiskLevel != "" && !r.RiskLevel.IsValid() {
		return dErrors.New(dErrors.CodeInvalidRequest, "invalid risk_level")
	}
	if r.EventID != "" {
		if _, err := id.ParseEventID(r.EventID); err != nil {
			return err
		}
	}
	if len(r.Details) > 0 && !json.Valid(r.Details) {
		return dErrors.New(dErrors.CodeInvalidRequest, "details must be valid JSON")
	}
	return nil
}
