package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	auditmodels "gatekeeper/internal/audit/models"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/platform/logger"
	"gatekeeper/internal/workflow/metrics"
	"gatekeeper/internal/workflow/models"
	"gatekeeper/internal/workflow/store"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/clock"
	"gatekeeper/pkg/testutil"
)

var errDownstream = errors.New("downstream unavailable")

type recordingAuditor struct {
	mu     sync.Mutex
	events []auditmodels.LogRequest
	err    error
}

func (a *recordingAuditor) LogEvent(_ context.Context, req *auditmodels.LogRequest) (*auditmodels.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *req)
	if a.err != nil {
		return nil, a.err
	}
	return &auditmodels.Event{ID: id.NewEventID(), EventType: req.EventType}, nil
}

func (a *recordingAuditor) types() []auditmodels.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]auditmodels.EventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.EventType)
	}
	return out
}

type sentNotification struct {
	recipients []string
	template   notify.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []string, template notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{recipients: append([]string(nil), recipients...), template: template})
	return n.err
}

func (n *recordingNotifier) byType(t notify.EventType) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.template.EventType == t {
			out = append(out, s)
		}
	}
	return out
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clock.Fake
	store    *store.InMemoryStore
	auditor  *recordingAuditor
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	service  *Service
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.auditor = &recordingAuditor{}
	s.notifier = &recordingNotifier{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, Config{ReminderInterval: 24 * time.Hour},
		WithClock(s.clock),
		WithAuditLogger(s.auditor),
		WithNotifier(s.notifier),
		WithLogger(logger.Discard()),
		WithMetrics(s.metrics),
	)
}

func hours(h int) *int { return &h }

func (s *EngineSuite) create(approvers []string, opts ...func(*models.CreateRequest)) *models.Workflow {
	req := &models.CreateRequest{
		OperationID:       "deploy-prod-42",
		OperationType:     "deployment",
		RequiredApprovers: approvers,
		SecurityLevel:     models.SecurityHigh,
		ExpirationHours:   hours(1),
	}
	for _, opt := range opts {
		opt(req)
	}
	w, err := s.service.CreateWorkflow(s.ctx, "requester", req)
	s.Require().NoError(err)
	return w
}

func (s *EngineSuite) decide(w *models.Workflow, approver string, verdict models.Verdict) (*models.StatusSnapshot, error) {
	return s.service.RecordDecision(s.ctx, w.ID, approver, &models.DecisionRequest{Decision: verdict})
}

func (s *EngineSuite) TestCreateWorkflowPersistsAuditsAndNotifies() {
	w := s.create([]string{"u1", "u2"}, func(r *models.CreateRequest) {
		r.Context = json.RawMessage(`{"ticket":"CHG-1"}`)
	})

	s.Equal(models.StatusPending, w.Status)
	s.Equal(s.clock.Now().Add(time.Hour), w.ExpiresAt)
	s.Empty(w.CurrentApprovers)

	stored, err := s.store.FindByID(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal([]string{"u1", "u2"}, stored.RequiredApprovers)
	s.JSONEq(`{"ticket":"CHG-1"}`, string(stored.Metadata))

	s.Equal([]auditmodels.EventType{auditmodels.EventApprovalRequested}, s.auditor.types())
	s.Equal("approval_workflow", s.auditor.events[0].ResourceType)
	s.Contains(string(s.auditor.events[0].Details), `"security_level":"high"`)

	requested := s.notifier.byType(notify.EventApprovalRequested)
	s.Require().Len(requested, 1)
	s.Equal([]string{"u1", "u2"}, requested[0].recipients)
	s.Equal(w.ID, requested[0].template.WorkflowID)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.WorkflowsCreated))
}

func (s *EngineSuite) TestCreateWorkflowUsesDefaultExpiration() {
	w := s.create([]string{"u1"}, func(r *models.CreateRequest) { r.ExpirationHours = nil })
	s.Equal(s.clock.Now().Add(24*time.Hour), w.ExpiresAt)
}

func (s *EngineSuite) TestCreateWorkflowValidation() {
	cases := map[string]*models.CreateRequest{
		"empty operation id": {RequiredApprovers: []string{"u1"}},
		"no approvers":       {OperationID: "op"},
		"duplicate approver": {OperationID: "op", RequiredApprovers: []string{"u1", " u1"}},
		"blank approver":     {OperationID: "op", RequiredApprovers: []string{"u1", "  "}},
		"too many approvers": {OperationID: "op", RequiredApprovers: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}},
		"negative expiry":    {OperationID: "op", RequiredApprovers: []string{"u1"}, ExpirationHours: hours(-1)},
		"expiry over max":    {OperationID: "op", RequiredApprovers: []string{"u1"}, ExpirationHours: hours(24*30 + 1)},
		"bad security level": {OperationID: "op", RequiredApprovers: []string{"u1"}, SecurityLevel: "extreme"},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.service.CreateWorkflow(s.ctx, "requester", req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest), "got %v", err)
		})
	}
	s.Empty(s.auditor.types())
}

func (s *EngineSuite) TestAllApproversApproveCompletesWorkflow() {
	w := s.create([]string{"u1", "u2"})

	snap, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)
	s.False(snap.IsComplete)
	s.False(snap.CanProceed)
	s.Equal([]string{"u2"}, snap.PendingApprovers)
	s.Equal(models.StatusPending, snap.Workflow.Status)

	s.clock.Advance(time.Minute)
	snap, err = s.decide(w, "u2", models.VerdictApprove)
	s.Require().NoError(err)
	s.True(snap.IsComplete)
	s.True(snap.CanProceed)
	s.Equal(models.StatusApproved, snap.Workflow.Status)
	s.Equal([]string{"u1", "u2"}, snap.Workflow.CurrentApprovers)
	s.Empty(snap.PendingApprovers)

	s.Equal([]auditmodels.EventType{auditmodels.EventApprovalRequested, auditmodels.EventApprovalGranted}, s.auditor.types())
	granted := s.notifier.byType(notify.EventGranted)
	s.Require().Len(granted, 1)
	s.ElementsMatch([]string{"u1", "u2", "requester"}, granted[0].recipients)
}

func (s *EngineSuite) TestRejectShortCircuits() {
	w := s.create([]string{"u1", "u2"})

	snap, err := s.decide(w, "u1", models.VerdictReject)
	s.Require().NoError(err)
	s.True(snap.IsComplete)
	s.False(snap.CanProceed)
	s.Equal(models.StatusRejected, snap.Workflow.Status)

	_, err = s.decide(w, "u2", models.VerdictApprove)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending))

	status, err := s.service.GetStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, status.Workflow.Status)
	s.False(status.CanProceed)
	s.Contains(s.auditor.types(), auditmodels.EventApprovalDenied)
}

func (s *EngineSuite) TestZeroHourWorkflowIsAlreadyExpired() {
	w := s.create([]string{"u1"}, func(r *models.CreateRequest) { r.ExpirationHours = hours(0) })

	_, err := s.decide(w, "u1", models.VerdictApprove)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowExpired), "got %v", err)

	status, err := s.service.GetStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, status.Workflow.Status)
	s.True(status.IsComplete)

	stored, err := s.store.FindByID(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status, "expiry is persisted by the rejected decision")
	s.Len(s.notifier.byType(notify.EventExpired), 1)
}

func (s *EngineSuite) TestResubmittedDecisionCountsOnce() {
	w := s.create([]string{"u1", "u2"})

	_, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)
	s.clock.Advance(time.Second)
	snap, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)

	s.False(snap.IsComplete)
	s.Len(snap.Decisions, 1)
	s.Equal([]string{"u1"}, snap.Workflow.CurrentApprovers)
}

func (s *EngineSuite) TestResubmissionReplacesEarlierVerdict() {
	w := s.create([]string{"u1", "u2", "u3"})

	_, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)
	s.clock.Advance(time.Second)
	_, err = s.service.RecordDecision(s.ctx, w.ID, "u1", &models.DecisionRequest{
		Decision: models.VerdictApprove, Feedback: "with conditions", Conditions: []string{"after 18:00"},
	})
	s.Require().NoError(err)

	decisions, err := s.store.ListDecisions(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Require().Len(decisions, 1)
	s.Equal("with conditions", decisions[0].Feedback)
	s.Equal([]string{"after 18:00"}, decisions[0].Conditions)
}

func (s *EngineSuite) TestPendingApproverBlocksCompletion() {
	w := s.create([]string{"a", "b", "c"})

	_, err := s.decide(w, "b", models.VerdictApprove)
	s.Require().NoError(err)
	snap, err := s.decide(w, "a", models.VerdictApprove)
	s.Require().NoError(err)
	s.False(snap.IsComplete)
	s.Equal([]string{"c"}, snap.PendingApprovers)

	snap, err = s.decide(w, "c", models.VerdictApprove)
	s.Require().NoError(err)
	s.True(snap.IsComplete)
	s.True(snap.CanProceed)
}

func (s *EngineSuite) TestRequireAllApproversPersistsPerWorkflow() {
	requireAll := true
	w := s.create([]string{"u1", "u2"}, func(r *models.CreateRequest) { r.RequireAllApprovers = &requireAll })
	s.True(w.RequireAllApprovers)

	snap, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)
	s.False(snap.IsComplete)
	s.Contains(snap.NextActions[len(snap.NextActions)-1], "1 of 2 approvals")
}

func (s *EngineSuite) TestDecisionAfterDeadlineExpires() {
	w := s.create([]string{"u1", "u2"})
	s.clock.Advance(time.Hour)

	_, err := s.decide(w, "u1", models.VerdictApprove)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowExpired))

	_, err = s.decide(w, "u2", models.VerdictApprove)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending), "second attempt sees the persisted expiry")
	s.Contains(s.auditor.types(), auditmodels.EventApprovalExpired)
}

func (s *EngineSuite) TestTerminalWorkflowRejectsDecisions() {
	for _, terminal := range []models.Status{models.StatusApproved, models.StatusRejected, models.StatusCancelled, models.StatusExpired} {
		s.Run(string(terminal), func() {
			w := s.create([]string{"u1", "u2"})
			stored, err := s.store.FindByID(s.ctx, w.ID)
			s.Require().NoError(err)
			stored.Status = terminal
			s.Require().NoError(s.store.Update(s.ctx, stored))

			_, err = s.decide(w, "u1", models.VerdictApprove)
			s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending), "got %v", err)
		})
	}
}

func (s *EngineSuite) TestUnknownWorkflowAndOutsider() {
	_, err := s.service.RecordDecision(s.ctx, id.NewWorkflowID(), "u1", &models.DecisionRequest{Decision: models.VerdictApprove})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	w := s.create([]string{"u1"})
	_, err = s.decide(w, "mallory", models.VerdictApprove)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.RecordDecision(s.ctx, w.ID, "u1", &models.DecisionRequest{Decision: "maybe"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest))
}

func (s *EngineSuite) TestGetStatusExpiresLazily() {
	w := s.create([]string{"u1", "u2"})
	_, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)
	s.clock.Advance(2 * time.Hour)

	snap, err := s.service.GetStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, snap.Workflow.Status)
	s.False(snap.CanProceed)
	s.Len(snap.Decisions, 1)

	// Reads after the lazy transition don't emit a second expiry.
	_, err = s.service.GetStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Len(s.notifier.byType(notify.EventExpired), 1)
}

func (s *EngineSuite) TestCancelWorkflow() {
	w := s.create([]string{"u1", "u2"})

	_, err := s.service.CancelWorkflow(s.ctx, w.ID, "stranger", &models.CancelRequest{Reason: "nope"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	cancelled, err := s.service.CancelWorkflow(s.ctx, w.ID, "requester", &models.CancelRequest{Reason: " change window closed "})
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)
	s.Equal("change window closed", cancelled.CancelReason)
	s.NotNil(cancelled.CompletedAt)

	_, err = s.service.CancelWorkflow(s.ctx, w.ID, "requester", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending))
	_, err = s.decide(w, "u1", models.VerdictApprove)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending))

	s.Contains(s.auditor.types(), auditmodels.EventApprovalCancelled)
	s.Len(s.notifier.byType(notify.EventCancelled), 1)
}

func (s *EngineSuite) TestCancelExpiredWorkflowIsNotPendingWithOrWithoutSweep() {
	unswept := s.create([]string{"u1"})
	s.clock.Advance(2 * time.Hour)

	_, err := s.service.CancelWorkflow(s.ctx, unswept.ID, "requester", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending), "got %v", err)
	stored, err := s.store.FindByID(s.ctx, unswept.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)
	s.Len(s.notifier.byType(notify.EventExpired), 1)

	swept := s.create([]string{"u1"})
	s.clock.Advance(2 * time.Hour)
	_, err = s.service.SweepExpirations(s.ctx)
	s.Require().NoError(err)

	_, err = s.service.CancelWorkflow(s.ctx, swept.ID, "requester", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowNotPending), "got %v", err)
	s.Len(s.notifier.byType(notify.EventExpired), 2)
}

func (s *EngineSuite) TestListUserWorkflows() {
	first := s.create([]string{"u1", "u2"})
	s.clock.Advance(time.Minute)
	second := s.create([]string{"u1"}, func(r *models.CreateRequest) { r.ExpirationHours = hours(0) })
	s.clock.Advance(time.Minute)
	s.create([]string{"u3"})

	all, err := s.service.ListUserWorkflows(s.ctx, "u1", nil)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.ID, all[0].ID, "newest first")
	s.Equal(models.StatusExpired, all[0].Status)
	s.Equal(first.ID, all[1].ID)

	expired := models.StatusExpired
	only, err := s.service.ListUserWorkflows(s.ctx, "u1", &expired)
	s.Require().NoError(err)
	s.Require().Len(only, 1)
	s.Equal(second.ID, only[0].ID)

	pending := models.StatusPending
	only, err = s.service.ListUserWorkflows(s.ctx, "u1", &pending)
	s.Require().NoError(err)
	s.Require().Len(only, 1)
	s.Equal(first.ID, only[0].ID)

	requested, err := s.service.ListUserWorkflows(s.ctx, "requester", nil)
	s.Require().NoError(err)
	s.Len(requested, 3)

	bogus := models.Status("bogus")
	_, err = s.service.ListUserWorkflows(s.ctx, "u1", &bogus)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest))
}

func (s *EngineSuite) TestSweepExpirations() {
	stale := s.create([]string{"u1"})
	done := s.create([]string{"u2"})
	_, err := s.decide(done, "u2", models.VerdictApprove)
	s.Require().NoError(err)
	s.clock.Advance(30 * time.Minute)
	fresh := s.create([]string{"u3"})
	s.clock.Advance(31 * time.Minute)

	result, err := s.service.SweepExpirations(s.ctx)
	s.Require().NoError(err)
	s.Equal(SweepResult{Scanned: 1, Processed: 1}, result)

	got, _ := s.store.FindByID(s.ctx, stale.ID)
	s.Equal(models.StatusExpired, got.Status)
	got, _ = s.store.FindByID(s.ctx, fresh.ID)
	s.Equal(models.StatusPending, got.Status)

	again, err := s.service.SweepExpirations(s.ctx)
	s.Require().NoError(err)
	s.Zero(again.Processed)
}

func (s *EngineSuite) TestSweepContinuesWhenSideEffectsFail() {
	s.notifier.err = errDownstream
	s.auditor.err = errDownstream
	a := s.create([]string{"u1"})
	b := s.create([]string{"u2"})
	s.clock.Advance(2 * time.Hour)

	result, err := s.service.SweepExpirations(s.ctx)
	s.Require().NoError(err, "side effect failures are not sweep failures")
	s.Equal(2, result.Processed)
	for _, w := range []*models.Workflow{a, b} {
		got, _ := s.store.FindByID(s.ctx, w.ID)
		s.Equal(models.StatusExpired, got.Status)
	}
	s.Positive(promtest.ToFloat64(s.metrics.SideEffectFailures.WithLabelValues("notify")))
}

func (s *EngineSuite) TestSweepReminders() {
	w := s.create([]string{"u1", "u2"}, func(r *models.CreateRequest) { r.ExpirationHours = hours(72) })
	_, err := s.decide(w, "u1", models.VerdictApprove)
	s.Require().NoError(err)

	result, err := s.service.SweepReminders(s.ctx)
	s.Require().NoError(err)
	s.Zero(result.Scanned, "not due before the interval")

	s.clock.Advance(25 * time.Hour)
	result, err = s.service.SweepReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Processed)

	reminders := s.notifier.byType(notify.EventReminder)
	s.Require().Len(reminders, 1)
	s.Equal([]string{"u2"}, reminders[0].recipients, "only approvers who have not decided")

	stored, _ := s.store.FindByID(s.ctx, w.ID)
	s.Require().NotNil(stored.LastReminderAt)
	s.Equal(s.clock.Now(), *stored.LastReminderAt)

	s.clock.Advance(time.Hour)
	result, err = s.service.SweepReminders(s.ctx)
	s.Require().NoError(err)
	s.Zero(result.Processed, "stamped reminder resets the interval")
}

func (s *EngineSuite) TestConcurrentDecisionsCompleteOnce() {
	approvers := []string{"a", "b", "c", "d", "e"}
	w := s.create(approvers)

	out := testutil.RunConcurrent(len(approvers), func(i int) error {
		_, err := s.decide(w, approvers[i], models.VerdictApprove)
		return err
	})
	s.Equal(len(approvers), out.Successes())

	snap, err := s.service.GetStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, snap.Workflow.Status)
	s.Len(snap.Decisions, len(approvers))
	s.Len(s.notifier.byType(notify.EventGranted), 1)
}

func (s *EngineSuite) TestConcurrentRejectionDecidesOnce() {
	approvers := []string{"a", "b", "c", "d", "e"}
	w := s.create(approvers)

	out := testutil.RunConcurrent(len(approvers), func(i int) error {
		verdict := models.VerdictApprove
		if i == 0 {
			verdict = models.VerdictReject
		}
		_, err := s.decide(w, approvers[i], verdict)
		return err
	})
	s.Equal(len(approvers), out.Successes()+out.Count(dErrors.CodeWorkflowNotPending))

	got, err := s.store.FindByID(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.Len(s.notifier.byType(notify.EventDenied), 1)
}

func (s *EngineSuite) TestDecisionRacingExpirySweepResolvesCleanly() {
	w := s.create([]string{"u1"})
	s.clock.Advance(time.Hour)

	var (
		wg       sync.WaitGroup
		decision error
	)
	wg.Go(func() { _, decision = s.decide(w, "u1", models.VerdictApprove) })
	wg.Go(func() { _, _ = s.service.SweepExpirations(s.ctx) })
	wg.Wait()

	s.True(dErrors.HasCode(decision, dErrors.CodeWorkflowExpired) || dErrors.HasCode(decision, dErrors.CodeWorkflowNotPending))
	got, _ := s.store.FindByID(s.ctx, w.ID)
	s.Equal(models.StatusExpired, got.Status)
	s.Len(s.notifier.byType(notify.EventExpired), 1)
}
