package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// EvaluateSuite covers the completion rule. It is pure, so every property is
// checked directly against decision sets rather than through the service.
type EvaluateSuite struct {
	suite.Suite
	t0 time.Time
	wf *Workflow
}

func TestEvaluateSuite(t *testing.T) {
	suite.Run(t, new(EvaluateSuite))
}

func (s *EvaluateSuite) SetupTest() {
	s.t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.wf = &Workflow{
		ID:                id.NewWorkflowID(),
		RequiredApprovers: []string{"a", "b", "c"},
		Status:            StatusPending,
		ExpiresAt:         s.t0.Add(time.Hour),
	}
}

func (s *EvaluateSuite) decide(approver string, v Verdict, offset time.Duration) Decision {
	return Decision{WorkflowID: s.wf.ID, ApproverID: approver, Verdict: v, DecidedAt: s.t0.Add(offset)}
}

func (s *EvaluateSuite) TestAllApprovedCompletesInAnyOrder() {
	orders := [][]string{{"a", "b", "c"}, {"c", "a", "b"}, {"b", "c", "a"}}
	for _, order := range orders {
		var ds []Decision
		for i, approver := range order {
			ds = append(ds, s.decide(approver, VerdictApprove, time.Duration(i)*time.Minute))
		}
		out := Evaluate(s.wf, ds)
		s.True(out.IsComplete, "order %v", order)
		s.True(out.CanProceed, "order %v", order)
		s.Equal(StatusApproved, out.Status)
		s.Equal(order, out.Approved, "approvals keep decision order")
	}
}

func (s *EvaluateSuite) TestPendingApproverBlocksCompletion() {
	out := Evaluate(s.wf, []Decision{
		s.decide("a", VerdictApprove, 0),
		s.decide("b", VerdictApprove, time.Minute),
	})
	s.False(out.IsComplete)
	s.False(out.CanProceed)
	s.Equal(StatusPending, out.Status)
	s.Equal([]string{"c"}, out.Pending)
}

func (s *EvaluateSuite) TestRejectShortCircuits() {
	s.Run("reject alone completes", func() {
		out := Evaluate(s.wf, []Decision{s.decide("b", VerdictReject, 0)})
		s.True(out.IsComplete)
		s.False(out.CanProceed)
		s.Equal(StatusRejected, out.Status)
	})

	s.Run("later approvals do not override a reject", func() {
		out := Evaluate(s.wf, []Decision{
			s.decide("a", VerdictReject, 0),
			s.decide("b", VerdictApprove, time.Minute),
			s.decide("c", VerdictApprove, 2*time.Minute),
		})
		s.Equal(StatusRejected, out.Status)
		s.False(out.CanProceed)
		s.Equal([]string{"a"}, out.Rejected)
	})
}

func (s *EvaluateSuite) TestRepeatedDecisionCountsOnce() {
	out := Evaluate(s.wf, []Decision{
		s.decide("a", VerdictApprove, 0),
		s.decide("a", VerdictApprove, time.Minute),
		s.decide("b", VerdictApprove, 2*time.Minute),
	})
	s.False(out.IsComplete)
	s.Equal([]string{"a", "b"}, out.Approved)

	s.Run("latest decision of an approver wins", func() {
		out := Evaluate(s.wf, []Decision{
			s.decide("a", VerdictApprove, time.Minute),
			s.decide("a", VerdictReject, 0),
		})
		s.Equal([]string{"a"}, out.Approved)
		s.Empty(out.Rejected)
	})
}

func (s *EvaluateSuite) TestDecisionsFromNonApproversAreIgnored() {
	out := Evaluate(s.wf, []Decision{s.decide("mallory", VerdictReject, 0)})
	s.False(out.IsComplete)
	s.Len(out.Pending, 3)
}

func (s *EvaluateSuite) TestRequireAllApprovers() {
	s.wf.RequireAllApprovers = true
	partial := Evaluate(s.wf, []Decision{s.decide("a", VerdictApprove, 0), s.decide("b", VerdictApprove, 0)})
	s.False(partial.IsComplete)

	full := Evaluate(s.wf, []Decision{
		s.decide("a", VerdictApprove, 0),
		s.decide("b", VerdictApprove, 0),
		s.decide("c", VerdictApprove, 0),
	})
	s.True(full.CanProceed)
}

func (s *EvaluateSuite) TestSnapshotReportsLazyExpiration() {
	snap := Snapshot(s.wf, nil, s.wf.ExpiresAt)
	s.Equal(StatusExpired, snap.Workflow.Status)
	s.Equal(StatusPending, s.wf.Status, "snapshot must not mutate the stored workflow")
	s.True(snap.IsComplete)
	s.False(snap.CanProceed)
	s.NotEmpty(snap.NextActions)
}

func (s *EvaluateSuite) TestSnapshotPendingActions() {
	snap := Snapshot(s.wf, []Decision{s.decide("a", VerdictApprove, 0)}, s.t0)
	s.Equal([]string{"b", "c"}, snap.PendingApprovers)
	s.Equal([]string{"Awaiting decision from b.", "Awaiting decision from c."}, snap.NextActions)
	s.Len(snap.Decisions, 1)
}

func TestIsExpiredBoundary(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := &Workflow{Status: StatusPending, ExpiresAt: deadline}

	assert.False(t, w.IsExpired(deadline.Add(-time.Nanosecond)))
	assert.True(t, w.IsExpired(deadline))
	assert.Equal(t, StatusExpired, w.EffectiveStatus(deadline))

	w.Status = StatusApproved
	assert.Equal(t, StatusApproved, w.EffectiveStatus(deadline.Add(time.Hour)))
}

func TestReminderDue(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := &Workflow{CreatedAt: created}
	assert.True(t, w.ReminderDue(created))
	assert.False(t, w.ReminderDue(created.Add(-time.Second)))

	last := created.Add(24 * time.Hour)
	w.LastReminderAt = &last
	assert.False(t, w.ReminderDue(created.Add(time.Hour)))
	assert.True(t, w.ReminderDue(last))
}

func TestCloneIsDeep(t *testing.T) {
	w := &Workflow{RequiredApprovers: []string{"a"}, Metadata: []byte(`{"k":1}`)}
	c := w.Clone()
	c.RequiredApprovers[0] = "z"
	c.Metadata[0] = '['
	assert.Equal(t, "a", w.RequiredApprovers[0])
	assert.Equal(t, byte('{'), w.Metadata[0])
}

func TestCreateRequestValidate(t *testing.T) {
	valid := func() *CreateRequest {
		return &CreateRequest{OperationID: " deploy-42 ", RequiredApprovers: []string{" u1 ", "u2"}}
	}
	prepare := func(r *CreateRequest) error {
		r.Sanitize()
		r.Normalize()
		return r.Validate()
	}

	t.Run("trims and defaults security level", func(t *testing.T) {
		r := valid()
		require.NoError(t, prepare(r))
		assert.Equal(t, "deploy-42", r.OperationID)
		assert.Equal(t, []string{"u1", "u2"}, r.RequiredApprovers)
		assert.Equal(t, SecurityMedium, r.SecurityLevel)
	})

	cases := map[string]func(r *CreateRequest){
		"empty operation id":  func(r *CreateRequest) { r.OperationID = "  " },
		"no approvers":        func(r *CreateRequest) { r.RequiredApprovers = nil },
		"blank approver":      func(r *CreateRequest) { r.RequiredApprovers = []string{"u1", " "} },
		"duplicate approvers": func(r *CreateRequest) { r.RequiredApprovers = []string{"u1", " u1"} },
		"bad security level":  func(r *CreateRequest) { r.SecurityLevel = "extreme" },
		"negative expiration": func(r *CreateRequest) { h := -1; r.ExpirationHours = &h },
		"invalid context":     func(r *CreateRequest) { r.Context = []byte(`{`) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid()
			mutate(r)
			err := prepare(r)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
		})
	}
}

func TestDecisionRequestValidate(t *testing.T) {
	r := &DecisionRequest{Decision: " Approve ", Conditions: []string{" ", "after 5pm"}}
	r.Sanitize()
	r.Normalize()
	require.NoError(t, r.Validate())
	assert.Equal(t, VerdictApprove, r.Decision)
	assert.Equal(t, []string{"after 5pm"}, r.Conditions)

	bad := &DecisionRequest{Decision: "abstain"}
	assert.True(t, dErrors.HasCode(bad.Validate(), dErrors.CodeInvalidRequest))
}
