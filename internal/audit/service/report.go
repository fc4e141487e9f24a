package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"gatekeeper/internal/audit/models"
)

// complianceTarget is the strict score below which a finding is raised.
const complianceTarget = 80.0

// GenerateReport aggregates the events in [start, end), archived included.
// The result depends only on the stored events and the range.
func (s *Service) GenerateReport(ctx context.Context, start, end time.Time, opts models.ReportOptions) (_ *models.Report, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.generate_report")
	defer func() { span.End(err) }()

	if err := validateRange(start, end, s.cfg.MaxRange); err != nil {
		return nil, err
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = s.cfg.ReportTopN
	}
	events, err := s.store.ListRange(ctx, start, end)
	if err != nil {
		return nil, dependencyFailure(err, "failed to load audit events")
	}
	return buildReport(events, start.UTC(), end.UTC(), topN), nil
}

func buildReport(events []*models.Event, start, end time.Time, topN int) *models.Report {
	r := &models.Report{
		Start:       start,
		End:         end,
		TotalEvents: len(events),
		ByType:      map[models.EventType]int{},
		ByRisk:      map[models.RiskLevel]int{},
		Daily:       dailyBuckets(start, end),
		Hourly:      make([]models.HourBucket, 24),
	}
	for h := range r.Hourly {
		r.Hourly[h].Hour = h
	}

	users := counter{}
	riskUsers := counter{}
	resources := counter{}
	clients := counter{}
	violations := 0
	dayStart := r.Daily[0].Start

	for _, e := range events {
		ts := e.Timestamp.UTC()
		elevated := e.RiskLevel.IsElevated()
		r.ByType[e.EventType]++
		r.ByRisk[e.RiskLevel]++

		if i := int(ts.Sub(dayStart) / (24 * time.Hour)); i >= 0 && i < len(r.Daily) {
			day := &r.Daily[i]
			day.Total++
			day.ByRisk[e.RiskLevel]++
			if elevated {
				day.RiskEvents++
			}
		}
		hour := &r.Hourly[ts.Hour()]
		hour.Total++
		if elevated {
			hour.RiskEvents++
		}

		if e.UserID != "" {
			users[e.UserID]++
			if elevated {
				riskUsers[e.UserID]++
			}
		}
		if res := e.Resource(); res != "" {
			resources[res]++
		}
		if e.UserAgent != "" {
			clients[clientLabel(e.UserAgent)]++
		}
		if models.IsViolation(e) {
			violations++
		}
	}

	r.UniqueUsers = len(users)
	r.TopUsers = users.top(topN)
	r.TopRiskUsers = riskUsers.top(topN)
	r.TopResources = resources.top(topN)
	r.Clients = clients.top(topN)
	r.ComplianceScore = models.ComplianceScore(violations, len(events))
	return r
}

// dailyBuckets covers every UTC day touched by [start, end).
func dailyBuckets(start, end time.Time) []models.ActivityBucket {
	var buckets []models.ActivityBucket
	for day := start.Truncate(24 * time.Hour); day.Before(end); day = day.Add(24 * time.Hour) {
		buckets = append(buckets, models.ActivityBucket{
			Start:  day,
			ByRisk: map[models.RiskLevel]int{},
		})
	}
	return buckets
}

// GenerateComplianceReport scores [start, end) against the strict violation
// set and summarizes approval outcomes.
func (s *Service) GenerateComplianceReport(ctx context.Context, start, end time.Time) (_ *models.ComplianceReport, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.generate_compliance_report")
	defer func() { span.End(err) }()

	if err := validateRange(start, end, s.cfg.MaxRange); err != nil {
		return nil, err
	}
	events, err := s.store.ListRange(ctx, start, end)
	if err != nil {
		return nil, dependencyFailure(err, "failed to load audit events")
	}
	return buildComplianceReport(events, start.UTC(), end.UTC()), nil
}

func buildComplianceReport(events []*models.Event, start, end time.Time) *models.ComplianceReport {
	r := &models.ComplianceReport{
		Start:            start,
		End:              end,
		TotalEvents:      len(events),
		ViolationsByType: map[models.EventType]int{},
	}
	standard, critical := 0, 0
	for _, e := range events {
		if models.IsStrictViolation(e) {
			r.Violations++
			r.ViolationsByType[e.EventType]++
		}
		if models.IsViolation(e) {
			standard++
		}
		if e.RiskLevel.IsElevated() {
			r.HighRiskEvents++
		}
		if e.RiskLevel == models.RiskCritical {
			critical++
		}
		switch e.EventType {
		case models.EventApprovalRequested:
			r.Approvals.Requested++
		case models.EventApprovalGranted:
			r.Approvals.Granted++
		case models.EventApprovalDenied:
			r.Approvals.Denied++
		case models.EventApprovalExpired:
			r.Approvals.Expired++
		case models.EventApprovalCancelled:
			r.Approvals.Cancelled++
		}
	}
	a := &r.Approvals
	if decided := a.Granted + a.Denied + a.Expired + a.Cancelled; decided > 0 {
		a.ApprovalRate = float64(a.Granted) / float64(decided) * 100
	}
	r.Score = models.ComplianceScore(r.Violations, r.TotalEvents)
	r.StandardScore = models.ComplianceScore(standard, r.TotalEvents)
	r.Findings = findings(r, critical)
	return r
}

func findings(r *models.ComplianceReport, critical int) []string {
	var out []string
	if r.Score < complianceTarget {
		out = append(out, fmt.Sprintf("compliance score %.1f is below the %.0f target", r.Score, complianceTarget))
	}
	for _, t := range models.AllEventTypes {
		if n := r.ViolationsByType[t]; n > 0 {
			out = append(out, fmt.Sprintf("%d %s violation(s)", n, strings.ReplaceAll(string(t), "_", " ")))
		}
	}
	if critical > 0 {
		out = append(out, fmt.Sprintf("%d critical risk event(s)", critical))
	}
	if r.Approvals.Expired > 0 {
		out = append(out, fmt.Sprintf("%d approval request(s) expired without a decision", r.Approvals.Expired))
	}
	if len(out) == 0 {
		out = append(out, "no compliance findings for the period")
	}
	return out
}

type counter map[string]int

// top ranks by count, then key, so equal counts order deterministically.
func (c counter) top(n int) []models.Count {
	out := make([]models.Count, 0, len(c))
	for k, v := range c {
		out = append(out, models.Count{Key: k, Count: v})
	}
	slices.SortFunc(out, func(a, b models.Count) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// clientLabel renders a user agent as "Browser on OS". Mobile clients use the
// platform instead of the OS; crawlers and scripts are grouped as "bot".
func clientLabel(raw string) string {
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}
