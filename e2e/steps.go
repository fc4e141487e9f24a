package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

const roleAuditor = "auditor"

// RegisterSteps registers all step definitions. tc returns the context of the
// running scenario.
func RegisterSteps(ctx *godog.ScenarioContext, tc func() *TestContext) {
	// Background
	ctx.Step(`^the gatekeeper service is running$`, func(context.Context) error { return tc().serviceIsRunning() })

	// Workflow steps
	ctx.Step(`^"([^"]*)" creates a workflow for operation "([^"]*)" with approvers "([^"]*)" expiring in (\d+) hours$`,
		func(_ context.Context, requester, operation, approvers string, hours int) error {
			return tc().createWorkflow(requester, operation, approvers, hours)
		})
	ctx.Step(`^"([^"]*)" approves the workflow$`, func(_ context.Context, user string) error {
		return tc().decide(user, "approve")
	})
	ctx.Step(`^"([^"]*)" rejects the workflow$`, func(_ context.Context, user string) error {
		return tc().decide(user, "reject")
	})
	ctx.Step(`^"([^"]*)" reads the workflow status$`, func(_ context.Context, user string) error {
		return tc().readStatus(user)
	})
	ctx.Step(`^"([^"]*)" cancels the workflow with reason "([^"]*)"$`, func(_ context.Context, user, reason string) error {
		return tc().cancel(user, reason)
	})

	// Audit steps
	ctx.Step(`^(\d+) failed logins are recorded for user "([^"]*)" one minute apart$`, func(_ context.Context, n int, user string) error {
		return tc().recordFailedLogins(n, user)
	})
	ctx.Step(`^"([^"]*)" records a "([^"]*)" event on resource "([^"]*)" "([^"]*)"$`,
		func(_ context.Context, user, eventType, resourceType, resourceID string) error {
			return tc().recordEvent(user, eventType, resourceType, resourceID)
		})
	ctx.Step(`^auditor "([^"]*)" searches for "([^"]*)" events by user "([^"]*)"$`, func(_ context.Context, auditor, eventType, user string) error {
		return tc().search(auditor, []string{roleAuditor}, eventType, user)
	})
	ctx.Step(`^"([^"]*)" searches for "([^"]*)" events by user "([^"]*)"$`, func(_ context.Context, caller, eventType, user string) error {
		return tc().search(caller, nil, eventType, user)
	})
	ctx.Step(`^auditor "([^"]*)" exports the last day as "([^"]*)"$`, func(_ context.Context, auditor, format string) error {
		return tc().export(auditor, format)
	})
	ctx.Step(`^auditor "([^"]*)" requests the compliance report for the last day$`, func(_ context.Context, auditor string) error {
		return tc().compliance(auditor)
	})

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, func(_ context.Context, code int) error {
		return tc().responseStatusShouldBe(code)
	})
	ctx.Step(`^the response should contain "([^"]*)"$`, func(_ context.Context, text string) error {
		return tc().responseShouldContain(text)
	})
	ctx.Step(`^the error code should be "([^"]*)"$`, func(_ context.Context, code string) error {
		return tc().errorCodeShouldBe(code)
	})
	ctx.Step(`^the workflow should be complete$`, func(context.Context) error { return tc().snapshotFlag("is_complete", true) })
	ctx.Step(`^the workflow should not be complete$`, func(context.Context) error { return tc().snapshotFlag("is_complete", false) })
	ctx.Step(`^the workflow can proceed$`, func(context.Context) error { return tc().snapshotFlag("can_proceed", true) })
	ctx.Step(`^the workflow cannot proceed$`, func(context.Context) error { return tc().snapshotFlag("can_proceed", false) })
	ctx.Step(`^the workflow status should be "([^"]*)"$`, func(_ context.Context, status string) error {
		return tc().workflowStatusShouldBe(status)
	})
	ctx.Step(`^the pending approvers should be "([^"]*)"$`, func(_ context.Context, approvers string) error {
		return tc().pendingApproversShouldBe(approvers)
	})
	ctx.Step(`^the audit trail for the workflow should contain "([^"]*)"$`, func(_ context.Context, types string) error {
		return tc().auditTrailShouldContain(types)
	})
	ctx.Step(`^(\d+) "([^"]*)" alerts? should have been raised for user "([^"]*)"$`, func(_ context.Context, n int, rule, user string) error {
		return tc().alertsShouldBe(n, rule, user)
	})
	ctx.Step(`^the search should return (\d+) events? with risk "([^"]*)"$`, func(_ context.Context, n int, risk string) error {
		return tc().searchShouldReturn(n, risk)
	})
}

func (tc *TestContext) serviceIsRunning() error {
	resp, err := tc.HTTPClient.Get(tc.target.BaseURL + "/health/live")
	if err != nil {
		return fmt.Errorf("gatekeeper is not reachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness check returned %d", resp.StatusCode)
	}
	return nil
}

func (tc *TestContext) createWorkflow(requester, operation, approvers string, hours int) error {
	body := map[string]any{
		"operation_id":          operation,
		"operation_type":        "change",
		"required_approvers":    splitCSV(approvers),
		"security_level":        "high",
		"expiration_hours":      hours,
		"require_all_approvers": false,
	}
	if err := tc.Do(http.MethodPost, "/workflows", requester, nil, body); err != nil {
		return err
	}
	if err := tc.responseStatusShouldBe(http.StatusCreated); err != nil {
		return err
	}
	workflowID, err := tc.GetResponseField("id")
	if err != nil {
		return err
	}
	tc.WorkflowID = workflowID.(string)
	return nil
}

func (tc *TestContext) decide(approver, verdict string) error {
	return tc.Do(http.MethodPost, "/workflows/"+tc.WorkflowID+"/decisions", approver, nil, map[string]any{
		"decision": verdict,
	})
}

func (tc *TestContext) readStatus(user string) error {
	return tc.Do(http.MethodGet, "/workflows/"+tc.WorkflowID, user, nil, nil)
}

func (tc *TestContext) cancel(user, reason string) error {
	return tc.Do(http.MethodPost, "/workflows/"+tc.WorkflowID+"/cancel", user, nil, map[string]any{
		"reason": reason,
	})
}

func (tc *TestContext) recordFailedLogins(n int, user string) error {
	if tc.target.remote() {
		return godog.ErrSkip
	}
	for range n {
		tc.target.Clock.Advance(time.Minute)
		err := tc.Do(http.MethodPost, "/audit/events", user, nil, map[string]any{
			"event_type": "user_login",
			"user_id":    user,
			"details":    map[string]any{"success": false},
		})
		if err != nil {
			return err
		}
		if err := tc.responseStatusShouldBe(http.StatusCreated); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TestContext) recordEvent(user, eventType, resourceType, resourceID string) error {
	err := tc.Do(http.MethodPost, "/audit/events", user, nil, map[string]any{
		"event_type":    eventType,
		"resource_type": resourceType,
		"resource_id":   resourceID,
	})
	if err != nil {
		return err
	}
	return tc.responseStatusShouldBe(http.StatusCreated)
}

func (tc *TestContext) search(caller string, roles []string, eventType, user string) error {
	q := url.Values{}
	q.Set("event_type", eventType)
	q.Set("user_id", user)
	return tc.Do(http.MethodGet, "/audit/events?"+q.Encode(), caller, roles, nil)
}

func (tc *TestContext) lastDay() url.Values {
	now := time.Now().UTC()
	if !tc.target.remote() {
		now = tc.target.Clock.Now().UTC()
	}
	q := url.Values{}
	q.Set("start", now.Add(-24*time.Hour).Format(time.RFC3339))
	q.Set("end", now.Add(time.Minute).Format(time.RFC3339))
	return q
}

func (tc *TestContext) export(auditor, format string) error {
	q := tc.lastDay()
	q.Set("format", format)
	return tc.Do(http.MethodGet, "/audit/export?"+q.Encode(), auditor, []string{roleAuditor}, nil)
}

func (tc *TestContext) compliance(auditor string) error {
	return tc.Do(http.MethodGet, "/audit/compliance?"+tc.lastDay().Encode(), auditor, []string{roleAuditor}, nil)
}

func (tc *TestContext) responseStatusShouldBe(expected int) error {
	if tc.LastResponse == nil {
		return errors.New("no request has been made")
	}
	if tc.LastResponse.StatusCode != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, tc.LastResponse.StatusCode, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseShouldContain(text string) error {
	if !tc.ResponseContains(text) {
		return fmt.Errorf("response does not contain %q: %s", text, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) errorCodeShouldBe(code string) error {
	value, err := tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if value != code {
		return fmt.Errorf("expected error code %q, got %v", code, value)
	}
	return nil
}

func (tc *TestContext) snapshotFlag(field string, expected bool) error {
	value, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected %s=%v, got %v", field, expected, value)
	}
	return nil
}

func (tc *TestContext) workflowStatusShouldBe(status string) error {
	value, err := tc.workflowField("status")
	if err != nil {
		return err
	}
	if value != status {
		return fmt.Errorf("expected workflow status %q, got %v", status, value)
	}
	return nil
}

func (tc *TestContext) pendingApproversShouldBe(approvers string) error {
	var snapshot struct {
		PendingApprovers []string `json:"pending_approvers"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	expected := splitCSV(approvers)
	if !slices.Equal(snapshot.PendingApprovers, expected) {
		return fmt.Errorf("expected pending approvers %v, got %v", expected, snapshot.PendingApprovers)
	}
	return nil
}

func (tc *TestContext) auditTrailShouldContain(types string) error {
	q := url.Values{}
	q.Set("resource_type", "approval_workflow")
	q.Set("resource_id", tc.WorkflowID)
	if err := tc.Do(http.MethodGet, "/audit/events?"+q.Encode(), "e2e-auditor", []string{roleAuditor}, nil); err != nil {
		return err
	}
	if err := tc.responseStatusShouldBe(http.StatusOK); err != nil {
		return err
	}
	var result struct {
		Events []struct {
			EventType string `json:"event_type"`
		} `json:"events"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &result); err != nil {
		return fmt.Errorf("failed to unmarshal audit events: %w", err)
	}
	recorded := make([]string, 0, len(result.Events))
	for _, e := range result.Events {
		recorded = append(recorded, e.EventType)
	}
	for _, want := range splitCSV(types) {
		if !slices.Contains(recorded, want) {
			return fmt.Errorf("audit trail %v is missing %q", recorded, want)
		}
	}
	return nil
}

func (tc *TestContext) alertsShouldBe(n int, rule, user string) error {
	if tc.target.remote() {
		return godog.ErrSkip
	}
	if got := tc.target.alerts.count(rule, user); got != n {
		return fmt.Errorf("expected %d %s alerts for %s, got %d", n, rule, user, got)
	}
	return nil
}

func (tc *TestContext) searchShouldReturn(n int, risk string) error {
	var result struct {
		Events []struct {
			RiskLevel string `json:"risk_level"`
		} `json:"events"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &result); err != nil {
		return fmt.Errorf("failed to unmarshal audit events: %w", err)
	}
	if len(result.Events) < n {
		return fmt.Errorf("expected at least %d events, got %d", n, len(result.Events))
	}
	for _, e := range result.Events[:n] {
		if e.RiskLevel != risk {
			return fmt.Errorf("expected risk %q, got %q", risk, e.RiskLevel)
		}
	}
	return nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
