package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/audit/models"
	dErrors "gatekeeper/pkg/domain-errors"
)

// parseFilter reads a Filter from the query string. List parameters accept
// repeated keys and comma-separated values.
func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	f := models.Filter{
		UserID:       strings.TrimSpace(q.Get("user_id")),
		AgentID:      strings.TrimSpace(q.Get("agent_id")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
	}
	for _, v := range splitList(q["event_type"]) {
		f.EventTypes = append(f.EventTypes, models.EventType(v))
	}
	for _, v := range splitList(q["risk_level"]) {
		f.RiskLevels = append(f.RiskLevels, models.RiskLevel(v))
	}

	var err error
	if f.Start, err = optionalTime(q.Get("start"), "start"); err != nil {
		return f, err
	}
	if f.End, err = optionalTime(q.Get("end"), "end"); err != nil {
		return f, err
	}
	if raw := q.Get("include_archived"); raw != "" {
		if f.IncludeArchived, err = strconv.ParseBool(raw); err != nil {
			return f, dErrors.New(dErrors.CodeInvalidRequest, "include_archived must be a boolean")
		}
	}
	if f.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = optionalInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// parseRange reads the required start and end timestamps (RFC 3339).
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := optionalTime(q.Get("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := optionalTime(q.Get("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start == nil || end == nil {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeInvalidRequest, "start and end are required")
	}
	return *start, *end, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func optionalTime(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, name+" must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

func optionalInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidRequest, name+" must be an integer")
	}
	return n, nil
}
