package service

// Unit tests for store error propagation and side-effect isolation.
// Behavioral properties of the engine run against the in-memory store in
// engine_test.go.

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,AuditLogger,Notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	auditmodels "gatekeeper/internal/audit/models"
	"gatekeeper/internal/platform/logger"
	"gatekeeper/internal/workflow/models"
	"gatekeeper/internal/workflow/service/mocks"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/clock"
	"gatekeeper/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockStore    *mocks.MockStore
	mockAuditor  *mocks.MockAuditLogger
	mockNotifier *mocks.MockNotifier
	clock        *clock.Fake
	service      *Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockAuditor = mocks.NewMockAuditLogger(s.ctrl)
	s.mockNotifier = mocks.NewMockNotifier(s.ctrl)
	s.clock = clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s.service = New(s.mockStore, Config{},
		WithClock(s.clock),
		WithAuditLogger(s.mockAuditor),
		WithNotifier(s.mockNotifier),
		WithLogger(logger.Discard()),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) pendingWorkflow() *models.Workflow {
	now := s.clock.Now()
	return &models.Workflow{
		ID:                id.NewWorkflowID(),
		OperationID:       "op-1",
		SecurityLevel:     models.SecurityMedium,
		RequiredApprovers: []string{"u1", "u2"},
		CurrentApprovers:  []string{},
		Status:            models.StatusPending,
		ExpiresAt:         now.Add(time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func validCreate() *models.CreateRequest {
	return &models.CreateRequest{OperationID: "op-1", RequiredApprovers: []string{"u1"}}
}

func (s *ServiceSuite) TestCreateWorkflow_StoreFailureIsDependencyFailure() {
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(assert.AnError)

	_, err := s.service.CreateWorkflow(context.Background(), "requester", validCreate())
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeDependencyFailure))
	assert.ErrorIs(s.T(), err, assert.AnError)
}

// The workflow exists once the store accepts it; audit and notify failures are symptoms only.
func (s *ServiceSuite) TestCreateWorkflow_SideEffectFailuresDoNotFailCreate() {
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mockAuditor.EXPECT().LogEvent(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), []string{"u1"}, gomock.Any()).Return(assert.AnError)

	w, err := s.service.CreateWorkflow(context.Background(), "requester", validCreate())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusPending, w.Status)
}

func (s *ServiceSuite) TestCreateWorkflow_AuditCarriesCallerContext() {
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mockAuditor.EXPECT().LogEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *auditmodels.LogRequest) (*auditmodels.Event, error) {
			assert.Equal(s.T(), auditmodels.EventApprovalRequested, req.EventType)
			assert.Equal(s.T(), "requester", req.UserID)
			assert.JSONEq(s.T(), `{"operation_id":"op-1","security_level":"medium","status":"pending","required_approvers":["u1"]}`, string(req.Details))
			return &auditmodels.Event{}, nil
		})
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.CreateWorkflow(context.Background(), "requester", validCreate())
	require.NoError(s.T(), err)
}

func (s *ServiceSuite) TestRecordDecision_ErrorTranslation() {
	s.T().Run("missing workflow is NotFound", func(t *testing.T) {
		s.mockStore.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.RecordDecision(context.Background(), id.NewWorkflowID(), "u1", &models.DecisionRequest{Decision: models.VerdictApprove})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.T().Run("store outage is DependencyFailure", func(t *testing.T) {
		s.mockStore.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)

		_, err := s.service.RecordDecision(context.Background(), id.NewWorkflowID(), "u1", &models.DecisionRequest{Decision: models.VerdictApprove})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDependencyFailure))
	})

	s.T().Run("lost guarded update is WorkflowNotPending", func(t *testing.T) {
		w := s.pendingWorkflow()
		s.mockStore.EXPECT().FindByID(gomock.Any(), w.ID).Return(w, nil)
		s.mockStore.EXPECT().SaveDecision(gomock.Any(), gomock.Any()).Return(nil)
		s.mockStore.EXPECT().ListDecisions(gomock.Any(), w.ID).Return([]models.Decision{
			{WorkflowID: w.ID, ApproverID: "u1", Verdict: models.VerdictApprove, DecidedAt: s.clock.Now()},
		}, nil)
		s.mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

		_, err := s.service.RecordDecision(context.Background(), w.ID, "u1", &models.DecisionRequest{Decision: models.VerdictApprove})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeWorkflowNotPending))
	})

	s.T().Run("decision save failure stops before evaluation", func(t *testing.T) {
		w := s.pendingWorkflow()
		s.mockStore.EXPECT().FindByID(gomock.Any(), w.ID).Return(w, nil)
		s.mockStore.EXPECT().SaveDecision(gomock.Any(), gomock.Any()).Return(assert.AnError)

		_, err := s.service.RecordDecision(context.Background(), w.ID, "u1", &models.DecisionRequest{Decision: models.VerdictApprove})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDependencyFailure))
	})

	s.T().Run("missing caller is Unauthorized", func(t *testing.T) {
		_, err := s.service.RecordDecision(context.Background(), id.NewWorkflowID(), "", &models.DecisionRequest{Decision: models.VerdictApprove})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestRecordDecision_NotifyFailureKeepsCompletion() {
	w := s.pendingWorkflow()
	w.RequiredApprovers = []string{"u1"}
	s.mockStore.EXPECT().FindByID(gomock.Any(), w.ID).Return(w, nil)
	s.mockStore.EXPECT().SaveDecision(gomock.Any(), gomock.Any()).Return(nil)
	s.mockStore.EXPECT().ListDecisions(gomock.Any(), w.ID).Return([]models.Decision{
		{WorkflowID: w.ID, ApproverID: "u1", Verdict: models.VerdictApprove, DecidedAt: s.clock.Now()},
	}, nil)
	s.mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, updated *models.Workflow) error {
			assert.Equal(s.T(), models.StatusApproved, updated.Status)
			assert.NotNil(s.T(), updated.CompletedAt)
			return nil
		})
	s.mockAuditor.EXPECT().LogEvent(gomock.Any(), gomock.Any()).Return(&auditmodels.Event{}, nil)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(assert.AnError)

	snap, err := s.service.RecordDecision(context.Background(), w.ID, "u1", &models.DecisionRequest{Decision: models.VerdictApprove})
	require.NoError(s.T(), err)
	assert.True(s.T(), snap.CanProceed)
}

func (s *ServiceSuite) TestSweepExpirations_ListFailureIsFatal() {
	s.mockStore.EXPECT().ListExpired(gomock.Any(), s.clock.Now(), defaultSweepBatchSize).Return(nil, assert.AnError)

	_, err := s.service.SweepExpirations(context.Background())
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeDependencyFailure))
}

func (s *ServiceSuite) TestSweepExpirations_ItemFailureDoesNotStopSweep() {
	broken := s.pendingWorkflow()
	healthy := s.pendingWorkflow()
	healthy.ExpiresAt = s.clock.Now().Add(-time.Minute)

	s.mockStore.EXPECT().ListExpired(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*models.Workflow{broken, healthy}, nil)
	s.mockStore.EXPECT().FindByID(gomock.Any(), broken.ID).Return(nil, assert.AnError)
	s.mockStore.EXPECT().FindByID(gomock.Any(), healthy.ID).Return(healthy, nil)
	s.mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	s.mockAuditor.EXPECT().LogEvent(gomock.Any(), gomock.Any()).Return(&auditmodels.Event{}, nil)
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := s.service.SweepExpirations(context.Background())
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, assert.AnError)
	assert.Contains(s.T(), err.Error(), broken.ID.String())
	assert.Equal(s.T(), SweepResult{Scanned: 2, Processed: 1, Failed: 1}, result)
}

func (s *ServiceSuite) TestSweepReminders_SkipsWorkflowsDecidedMeanwhile() {
	w := s.pendingWorkflow()
	w.CreatedAt = s.clock.Now().Add(-48 * time.Hour)
	w.Status = models.StatusApproved

	s.mockStore.EXPECT().ListReminderDue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]*models.Workflow{w}, nil)
	s.mockStore.EXPECT().FindByID(gomock.Any(), w.ID).Return(w, nil)

	result, err := s.service.SweepReminders(context.Background())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), SweepResult{Scanned: 1, Skipped: 1}, result)
}
