package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	dErrors "gatekeeper/pkg/domain-errors"
)

// RiskSuite covers risk classification and compliance scoring. Both are pure
// and drive alerting and reports, so the mapping is pinned here.
type RiskSuite struct {
	suite.Suite
}

func TestRiskSuite(t *testing.T) {
	suite.Run(t, new(RiskSuite))
}

func (s *RiskSuite) TestStaticMapping() {
	cases := map[EventType]RiskLevel{
		EventSecurityViolation:   RiskHigh,
		EventPermissionDenied:    RiskHigh,
		EventApprovalDenied:      RiskHigh,
		EventApprovalRequested:   RiskMedium,
		EventConfigurationChange: RiskMedium,
		EventDataAccess:          RiskMedium,
		EventUserLogin:           RiskLow,
		EventApprovalGranted:     RiskLow,
		EventAgentAction:         RiskLow,
	}
	for eventType, want := range cases {
		s.Equal(want, ClassifyRisk(eventType, "", nil), string(eventType))
	}
}

func (s *RiskSuite) TestExplicitLevelWins() {
	s.Equal(RiskLow, ClassifyRisk(EventSecurityViolation, RiskLow, json.RawMessage(`{"security_level":"critical"}`)))
}

func (s *RiskSuite) TestSecurityLevelEscalates() {
	s.Equal(RiskCritical, ClassifyRisk(EventApprovalRequested, "", json.RawMessage(`{"security_level":"critical"}`)))
	s.Equal(RiskHigh, ClassifyRisk(EventUserLogin, "", json.RawMessage(`{"security_level":"HIGH"}`)))
	s.Equal(RiskHigh, ClassifyRisk(EventPermissionDenied, "", json.RawMessage(`{"security_level":"low"}`)),
		"security level never lowers the mapped risk")
}

func (s *RiskSuite) TestOpaqueDetailsAreTolerated() {
	s.Equal(RiskLow, ClassifyRisk(EventUserLogin, "", json.RawMessage(`["not","an","object"]`)))
	s.Equal(RiskLow, ClassifyRisk(EventUserLogin, "", json.RawMessage(`{"security_level":7}`)))
}

func (s *RiskSuite) TestIsFailedLogin() {
	s.True(IsFailedLogin(&Event{EventType: EventLoginFailed}))
	s.True(IsFailedLogin(&Event{EventType: EventUserLogin, Details: json.RawMessage(`{"success":false}`)}))
	s.False(IsFailedLogin(&Event{EventType: EventUserLogin, Details: json.RawMessage(`{"success":true}`)}))
	s.False(IsFailedLogin(&Event{EventType: EventUserLogin}))
}

func (s *RiskSuite) TestViolationSets() {
	unauthorized := &Event{EventType: EventUnauthorizedAccess}
	s.False(IsViolation(unauthorized))
	s.True(IsStrictViolation(unauthorized))
	s.True(IsStrictViolation(&Event{EventType: EventUserLogin, Details: json.RawMessage(`{"success":false}`)}))
	s.True(IsViolation(&Event{EventType: EventPermissionDenied}))
}

func (s *RiskSuite) TestComplianceScoreBounds() {
	s.Equal(100.0, ComplianceScore(0, 0))
	s.Equal(100.0, ComplianceScore(0, 10))
	s.Equal(75.0, ComplianceScore(1, 4))
	s.Equal(0.0, ComplianceScore(4, 4))
	for total := 0; total <= 20; total++ {
		for v := 0; v <= total+5; v++ {
			score := ComplianceScore(v, total)
			s.GreaterOrEqual(score, 0.0)
			s.LessOrEqual(score, 100.0)
		}
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	for i := 1; i < len(AllRiskLevels); i++ {
		assert.Less(t, AllRiskLevels[i-1].Rank(), AllRiskLevels[i].Rank())
	}
	assert.True(t, RiskHigh.IsElevated())
	assert.False(t, RiskMedium.IsElevated())
	assert.False(t, RiskLevel("severe").IsValid())
}

func TestLogRequestValidate(t *testing.T) {
	r := &LogRequest{EventType: " USER_LOGIN ", RiskLevel: "High"}
	r.Sanitize()
	r.Normalize()
	assert.NoError(t, r.Validate())
	assert.Equal(t, EventUserLogin, r.EventType)
	assert.Equal(t, RiskHigh, r.RiskLevel)

	bad := &LogRequest{EventType: "coffee_break"}
	assert.True(t, dErrors.HasCode(bad.Validate(), dErrors.CodeInvalidRequest))

	badDetails := &LogRequest{EventType: EventDataAccess, Details: json.RawMessage(`{oops`)}
	assert.Error(t, badDetails.Validate())
}

func TestEventHelpers(t *testing.T) {
	e := &Event{AgentID: "agent-7", ResourceType: "workflow", ResourceID: "42", Details: json.RawMessage(`{}`)}
	assert.Equal(t, "agent-7", e.Actor())
	assert.Equal(t, "workflow:42", e.Resource())

	c := e.Clone()
	c.Details[0] = '['
	assert.Equal(t, byte('{'), e.Details[0])
}
