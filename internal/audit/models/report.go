package models

import "time"

// ExportFormat selects the serialization for ExportLogs.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatXML  ExportFormat = "xml"
)

func (f ExportFormat) IsValid() bool {
	return f == FormatJSON || f == FormatCSV || f == FormatXML
}

// ReportOptions tunes GenerateReport.
type ReportOptions struct {
	TopN int `json:"top_n"`
}

// Count is one ranked entry in a top-N list.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// ActivityBucket aggregates events in one time slot.
type ActivityBucket struct {
	Start      time.Time         `json:"start"`
	Total      int               `json:"total"`
	RiskEvents int               `json:"risk_events"`
	ByRisk     map[RiskLevel]int `json:"by_risk"`
}

// HourBucket aggregates events by hour of day (UTC, 0-23) across the range.
type HourBucket struct {
	Hour       int `json:"hour"`
	Total      int `json:"total"`
	RiskEvents int `json:"risk_events"`
}

// Report is the activity summary for [Start, End).
type Report struct {
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	TotalEvents     int               `json:"total_events"`
	UniqueUsers     int               `json:"unique_users"`
	ByType          map[EventType]int `json:"by_type"`
	ByRisk          map[RiskLevel]int `json:"by_risk"`
	Daily           []ActivityBucket  `json:"daily"`
	Hourly          []HourBucket      `json:"hourly"`
	TopUsers        []Count           `json:"top_users"`
	TopRiskUsers    []Count           `json:"top_risk_users"`
	TopResources    []Count           `json:"top_resources"`
	Clients         []Count           `json:"clients"`
	ComplianceScore float64           `json:"compliance_score"`
}

// ApprovalStats summarizes approval workflow events in a period.
type ApprovalStats struct {
	Requested    int     `json:"requested"`
	Granted      int     `json:"granted"`
	Denied       int     `json:"denied"`
	Expired      int     `json:"expired"`
	Cancelled    int     `json:"cancelled"`
	ApprovalRate float64 `json:"approval_rate"`
}

// ComplianceReport is the stricter compliance view of a period.
type ComplianceReport struct {
	Start            time.Time         `json:"start"`
	End              time.Time         `json:"end"`
	TotalEvents      int               `json:"total_events"`
	Violations       int               `json:"violations"`
	ViolationsByType map[EventType]int `json:"violations_by_type"`
	HighRiskEvents   int               `json:"high_risk_events"`
	Score            float64           `json:"score"`
	StandardScore    float64           `json:"standard_score"`
	Approvals        ApprovalStats     `json:"approvals"`
	Findings         []string          `json:"findings"`
}
