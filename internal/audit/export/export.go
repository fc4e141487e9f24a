// Package export serializes audit events as JSON, CSV or XML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"gatekeeper/internal/audit/models"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Header is the fixed CSV column order.
var Header = []string{
	"id", "timestamp", "event_type", "risk_level", "user_id", "agent_id",
	"resource_type", "resource_id", "ip_address", "user_agent", "archived", "details",
}

// ContentType returns the media type for f.
func ContentType(f models.ExportFormat) string {
	switch f {
	case models.FormatCSV:
		return "text/csv"
	case models.FormatXML:
		return "application/xml"
	default:
		return "application/json"
	}
}

// Write encodes events to w in format f. Unknown formats fail with
// CodeInvalidFormat before anything is written.
func Write(w io.Writer, f models.ExportFormat, events []*models.Event) error {
	switch f {
	case models.FormatJSON:
		return writeJSON(w, events)
	case models.FormatCSV:
		return writeCSV(w, events)
	case models.FormatXML:
		return writeXML(w, events)
	default:
		return dErrors.Newf(dErrors.CodeInvalidFormat, "unsupported export format %q", f)
	}
}

func writeJSON(w io.Writer, events []*models.Event) error {
	if events == nil {
		events = []*models.Event{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, events []*models.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range events {
		record := []string{
			e.ID.String(),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.EventType),
			string(e.RiskLevel),
			e.UserID,
			e.AgentID,
			e.ResourceType,
			e.ResourceID,
			e.IPAddress,
			e.UserAgent,
			strconv.FormatBool(e.Archived),
			string(e.Details),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv export: %w", err)
	}
	return nil
}

type xmlExport struct {
	XMLName xml.Name   `xml:"audit_events"`
	Count   int        `xml:"count,attr"`
	Events  []xmlEvent `xml:"event"`
}

type xmlEvent struct {
	ID           string `xml:"id,attr"`
	Timestamp    string `xml:"timestamp"`
	EventType    string `xml:"event_type"`
	RiskLevel    string `xml:"risk_level"`
	UserID       string `xml:"user_id,omitempty"`
	AgentID      string `xml:"agent_id,omitempty"`
	ResourceType string `xml:"resource_type,omitempty"`
	ResourceID   string `xml:"resource_id,omitempty"`
	IPAddress    string `xml:"ip_address,omitempty"`
	UserAgent    string `xml:"user_agent,omitempty"`
	Archived     bool   `xml:"archived"`
	Details      string `xml:"details,omitempty"`
}

func writeXML(w io.Writer, events []*models.Event) error {
	doc := xmlExport{Count: len(events), Events: make([]xmlEvent, len(events))}
	for i, e := range events {
		doc.Events[i] = xmlEvent{
			ID:           e.ID.String(),
			Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
			EventType:    string(e.EventType),
			RiskLevel:    string(e.RiskLevel),
			UserID:       e.UserID,
			AgentID:      e.AgentID,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Archived:     e.Archived,
			Details:      string(e.Details),
		}
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode xml export: %w", err)
	}
	return enc.Close()
}
