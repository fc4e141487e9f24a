package models

import (
	"encoding/json"
	"strings"
)

// baseRisk is the static event-type to severity mapping. Unlisted types are Low.
var baseRisk = map[EventType]RiskLevel{
	EventSecurityViolation:   RiskHigh,
	EventPermissionDenied:    RiskHigh,
	EventApprovalDenied:      RiskHigh,
	EventUnauthorizedAccess:  RiskHigh,
	EventApprovalRequested:   RiskMedium,
	EventConfigurationChange: RiskMedium,
	EventDataAccess:          RiskMedium,
	EventDataExport:          RiskMedium,
	EventLoginFailed:         RiskMedium,
}

// wellKnownDetails are the only sub-keys of details the service interprets.
type wellKnownDetails struct {
	SecurityLevel string `json:"security_level"`
	Success       *bool  `json:"success"`
}

func parseDetails(details json.RawMessage) wellKnownDetails {
	var d wellKnownDetails
	if len(details) == 0 {
		return d
	}
	// Details are opaque; anything that isn't an object simply has no well-known keys.
	_ = json.Unmarshal(details, &d)
	return d
}

// ClassifyRisk picks the risk level for a new event. An explicit level wins;
// otherwise the static mapping applies, escalated by details.security_level
// ("critical" forces Critical, "high" raises to at least High).
func ClassifyRisk(t EventType, explicit RiskLevel, details json.RawMessage) RiskLevel {
	if explicit.IsValid() {
		return explicit
	}
	level, ok := baseRisk[t]
	if !ok {
		level = RiskLow
	}
	switch strings.ToLower(parseDetails(details).SecurityLevel) {
	case string(RiskCritical):
		level = RiskCritical
	case string(RiskHigh):
		if level.Rank() < RiskHigh.Rank() {
			level = RiskHigh
		}
	}
	return level
}

// IsFailedLogin reports a login_failed event or a user_login whose details
// carry success=false.
func IsFailedLogin(e *Event) bool {
	switch e.EventType {
	case EventLoginFailed:
		return true
	case EventUserLogin:
		s := parseDetails(e.Details).Success
		return s != nil && !*s
	}
	return false
}

// Violation sets for compliance scoring.
var (
	standardViolations = map[EventType]bool{
		EventSecurityViolation: true,
		EventPermissionDenied:  true,
	}
	strictViolations = map[EventType]bool{
		EventSecurityViolation:  true,
		EventPermissionDenied:   true,
		EventUnauthorizedAccess: true,
		EventLoginFailed:        true,
	}
)

// IsViolation reports whether e counts against the standard compliance score.
func IsViolation(e *Event) bool {
	return standardViolations[e.EventType]
}

// IsStrictViolation uses the extended set of the compliance report,
// which also counts unauthorized access and failed logins.
func IsStrictViolation(e *Event) bool {
	return strictViolations[e.EventType] || IsFailedLogin(e)
}

// ComplianceScore is max(0, 100 - violations/total*100); an empty period scores 100.
func ComplianceScore(violations, total int) float64 {
	if total <= 0 {
		return 100
	}
	if violations < 0 {
		violations = 0
	}
	score := 100 - float64(violations)/float64(total)*100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
