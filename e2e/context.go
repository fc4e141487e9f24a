package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gatekeeper/internal/audit/alerting"
	jwttoken "gatekeeper/internal/jwt_token"
	"gatekeeper/pkg/platform/clock"
)

// Target is the gatekeeper instance under test. Clock and alert capture are
// only available in process.
type Target struct {
	BaseURL string
	Tokens  *jwttoken.JWTService
	Clock   *clock.Fake
	alerts  *alertRecorder
}

func (t *Target) remote() bool { return t.Clock == nil }

type alertRecorder struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (r *alertRecorder) record(_ context.Context, a alerting.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *alertRecorder) count(rule, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.alerts {
		if a.Rule == rule && a.UserID == userID {
			n++
		}
	}
	return n
}

// TestContext holds state between test steps
type TestContext struct {
	target           *Target
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	WorkflowID       string
}

func NewTestContext(target *Target) *TestContext {
	return &TestContext{
		target:     target,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (tc *TestContext) token(userID string, roles ...string) (string, error) {
	return tc.target.Tokens.GenerateToken(userID, roles)
}

// Do sends an authenticated request as userID and stores the response.
// A nil body sends no payload.
func (tc *TestContext) Do(method, path, userID string, roles []string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.target.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := tc.token(userID, roles...)
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField extracts a top level field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// workflowField reads a field of the workflow in the last response, which is
// either a workflow or a status snapshot wrapping one.
func (tc *TestContext) workflowField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if nested, ok := data["workflow"].(map[string]any); ok {
		data = nested
	}
	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("workflow field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}

	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}
	return false
}
