package handler

// Handler tests cover HTTP concerns only: caller extraction, path and query
// parsing, body decoding and domain error to status mapping. Workflow
// behavior is covered by the service suites and e2e/features.

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/platform/logger"
	"gatekeeper/internal/workflow/handler/mocks"
	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, logger.Discard()).Register(s.router)
}

func (s *HandlerSuite) do(method, path, caller string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := requestcontext.WithRequestID(req.Context(), "req-1")
	if caller != "" {
		ctx = requestcontext.WithUserID(ctx, caller)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *HandlerSuite) assertError(w *httptest.ResponseRecorder, status int, code dErrors.Code) {
	s.Equal(status, w.Code)
	var body httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal(string(code), body.Error)
}

func sampleWorkflow() *models.Workflow {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &models.Workflow{
		ID:                id.NewWorkflowID(),
		OperationID:       "op-1",
		SecurityLevel:     models.SecurityHigh,
		RequestedBy:       "requester",
		RequiredApprovers: []string{"alice", "bob"},
		Status:            models.StatusPending,
		ExpiresAt:         now.Add(24 * time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *HandlerSuite) TestCreate() {
	s.Run("caller becomes requester", func() {
		wf := sampleWorkflow()
		s.service.EXPECT().CreateWorkflow(gomock.Any(), "requester", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, req *models.CreateRequest) (*models.Workflow, error) {
				s.Equal("op-1", req.OperationID)
				s.Equal(models.SecurityHigh, req.SecurityLevel)
				return wf, nil
			})

		w := s.do(http.MethodPost, "/workflows", "requester", map[string]any{
			"operation_id":       "op-1",
			"required_approvers": []string{"alice", "bob"},
			"security_level":     "HIGH",
		})

		s.Equal(http.StatusCreated, w.Code)
		var resp WorkflowResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(wf.ID.String(), resp.ID)
		s.Equal([]string{}, resp.CurrentApprovers)
	})

	s.Run("invalid body never reaches the service", func() {
		w := s.do(http.MethodPost, "/workflows", "requester", map[string]any{"required_approvers": []string{"alice"}})
		s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
	})

	s.Run("unknown fields are rejected", func() {
		w := s.do(http.MethodPost, "/workflows", "requester", map[string]any{
			"operation_id": "op-1", "required_approvers": []string{"alice"}, "status": "approved",
		})
		s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
	})

	s.Run("missing caller is internal", func() {
		w := s.do(http.MethodPost, "/workflows", "", map[string]any{"operation_id": "op-1"})
		s.assertError(w, http.StatusInternalServerError, dErrors.CodeInternal)
	})
}

func (s *HandlerSuite) TestDecisionUsesCallerAsApprover() {
	wf := sampleWorkflow()
	s.service.EXPECT().RecordDecision(gomock.Any(), wf.ID, "alice", &models.DecisionRequest{
		Decision: models.VerdictApprove, Feedback: "ok",
	}).Return(&models.StatusSnapshot{Workflow: wf, PendingApprovers: []string{"bob"}}, nil)

	w := s.do(http.MethodPost, "/workflows/"+wf.ID.String()+"/decisions", "alice",
		map[string]any{"decision": "Approve", "feedback": " ok "})

	s.Equal(http.StatusOK, w.Code)
	var resp StatusResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal([]string{"bob"}, resp.PendingApprovers)
	s.False(resp.IsComplete)
}

func (s *HandlerSuite) TestDecisionErrorMapping() {
	wf := sampleWorkflow()
	path := "/workflows/" + wf.ID.String() + "/decisions"
	cases := []struct {
		name   string
		err    error
		status int
		code   dErrors.Code
	}{
		{"unknown workflow", dErrors.New(dErrors.CodeNotFound, "workflow not found"), http.StatusNotFound, dErrors.CodeNotFound},
		{"not an approver", dErrors.New(dErrors.CodeForbidden, "not a required approver"), http.StatusForbidden, dErrors.CodeForbidden},
		{"already decided", dErrors.New(dErrors.CodeWorkflowNotPending, "workflow is approved"), http.StatusConflict, dErrors.CodeWorkflowNotPending},
		{"past deadline", dErrors.New(dErrors.CodeWorkflowExpired, "workflow has expired"), http.StatusGone, dErrors.CodeWorkflowExpired},
		{"store down", dErrors.New(dErrors.CodeDependencyFailure, "store unavailable"), http.StatusServiceUnavailable, dErrors.CodeDependencyFailure},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().RecordDecision(gomock.Any(), wf.ID, "alice", gomock.Any()).Return(nil, tc.err)
			w := s.do(http.MethodPost, path, "alice", map[string]any{"decision": "reject"})
			s.assertError(w, tc.status, tc.code)
		})
	}

	s.Run("invalid verdict", func() {
		w := s.do(http.MethodPost, path, "alice", map[string]any{"decision": "maybe"})
		s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
	})

	s.Run("malformed id", func() {
		w := s.do(http.MethodPost, "/workflows/not-a-uuid/decisions", "alice", map[string]any{"decision": "approve"})
		s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
	})
}

func (s *HandlerSuite) TestCancel() {
	wf := sampleWorkflow()
	path := "/workflows/" + wf.ID.String() + "/cancel"

	s.Run("empty body is allowed", func() {
		cancelled := wf.Clone()
		cancelled.Status = models.StatusCancelled
		s.service.EXPECT().CancelWorkflow(gomock.Any(), wf.ID, "requester", &models.CancelRequest{}).Return(cancelled, nil)

		w := s.do(http.MethodPost, path, "requester", nil)
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"status":"cancelled"`)
	})

	s.Run("reason is trimmed", func() {
		s.service.EXPECT().CancelWorkflow(gomock.Any(), wf.ID, "requester", &models.CancelRequest{Reason: "no longer needed"}).Return(wf, nil)

		w := s.do(http.MethodPost, path, "requester", map[string]string{"reason": "  no longer needed "})
		s.Equal(http.StatusOK, w.Code)
	})
}

func (s *HandlerSuite) TestGetStatus() {
	wf := sampleWorkflow()
	s.service.EXPECT().GetStatus(gomock.Any(), wf.ID).Return(&models.StatusSnapshot{
		Workflow: wf,
		Decisions: []models.Decision{
			{WorkflowID: wf.ID, ApproverID: "alice", Verdict: models.VerdictApprove, DecidedAt: wf.CreatedAt},
		},
	}, nil)

	w := s.do(http.MethodGet, "/workflows/"+wf.ID.String(), "auditor", nil)
	s.Equal(http.StatusOK, w.Code)
	var resp StatusResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().Len(resp.Decisions, 1)
	s.Equal("approve", resp.Decisions[0].Decision)
	s.Equal([]string{}, resp.NextActions)
}

func (s *HandlerSuite) TestListMine() {
	s.Run("status filter is parsed", func() {
		expired := models.StatusExpired
		s.service.EXPECT().ListUserWorkflows(gomock.Any(), "alice", &expired).Return([]*models.Workflow{sampleWorkflow()}, nil)

		w := s.do(http.MethodGet, "/me/workflows?status=Expired", "alice", nil)
		s.Equal(http.StatusOK, w.Code)
		var resp ListResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(1, resp.Total)
	})

	s.Run("no filter", func() {
		s.service.EXPECT().ListUserWorkflows(gomock.Any(), "alice", nil).Return(nil, nil)

		w := s.do(http.MethodGet, "/me/workflows", "alice", nil)
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"workflows":[],"total":0}`, w.Body.String())
	})

	s.Run("unknown status", func() {
		w := s.do(http.MethodGet, "/me/workflows?status=done", "alice", nil)
		s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
	})
}
