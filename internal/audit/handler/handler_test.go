package handler

// Handler tests cover HTTP concerns: role gating, query parsing, caller
// defaults and error mapping. Audit behavior is covered by the service suites.

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

	"gatekeeper/internal/audit/handler/mocks"
	"gatekeeper/internal/audit/models"
	"gatekeeper/internal/platform/logger"
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

type caller struct {
	id    string
	roles []string
}

var (
	auditor = caller{id: "ada", roles: []string{RoleAuditor}}
	member  = caller{id: "bob"}
)

func (s *HandlerSuite) do(method, path string, c caller, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := requestcontext.WithRequestID(req.Context(), "req-1")
	ctx = requestcontext.WithUserID(ctx, c.id)
	ctx = requestcontext.WithRoles(ctx, c.roles)
	ctx = requestcontext.WithClientIP(ctx, "198.51.100.4")
	ctx = requestcontext.WithUserAgent(ctx, "curl/8.5.0")
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

func (s *HandlerSuite) TestLogEventDefaultsToCaller() {
	s.service.EXPECT().LogEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *models.LogRequest) (*models.Event, error) {
			s.Equal(models.EventDataAccess, req.EventType)
			s.Equal("bob", req.UserID)
			s.Equal("198.51.100.4", req.IPAddress)
			s.Equal("curl/8.5.0", req.UserAgent)
			return &models.Event{EventType: req.EventType, UserID: req.UserID, RiskLevel: models.RiskMedium}, nil
		})

	w := s.do(http.MethodPost, "/audit/events", member, map[string]any{"event_type": "data_access"})
	s.Equal(http.StatusCreated, w.Code)
}

func (s *HandlerSuite) TestLogEventAuditorKeepsExplicitActor() {
	gomock.InOrder(
		s.service.EXPECT().LogEvent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *models.LogRequest) (*models.Event, error) {
				s.Empty(req.UserID)
				s.Equal("agent-9", req.AgentID)
				return &models.Event{}, nil
			}),
		s.service.EXPECT().LogEvent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *models.LogRequest) (*models.Event, error) {
				s.Equal("carol", req.UserID)
				return &models.Event{}, nil
			}),
	)

	w := s.do(http.MethodPost, "/audit/events", auditor, map[string]any{"event_type": "agent_action", "agent_id": "agent-9"})
	s.Equal(http.StatusCreated, w.Code)
	w = s.do(http.MethodPost, "/audit/events", auditor, map[string]any{"event_type": "data_access", "user_id": "carol"})
	s.Equal(http.StatusCreated, w.Code)
}

func (s *HandlerSuite) TestLogEventBindsMemberToCaller() {
	s.service.EXPECT().LogEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *models.LogRequest) (*models.Event, error) {
			s.Equal("bob", req.UserID)
			s.Equal("agent-9", req.AgentID)
			return &models.Event{}, nil
		})

	w := s.do(http.MethodPost, "/audit/events", member, map[string]any{"event_type": "agent_action", "agent_id": "agent-9"})
	s.Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/audit/events", member, map[string]any{"event_type": "user_login", "user_id": "carol"})
	s.assertError(w, http.StatusForbidden, dErrors.CodeForbidden)
}

func (s *HandlerSuite) TestLogEventRejectsUnknownType() {
	w := s.do(http.MethodPost, "/audit/events", member, map[string]any{"event_type": "coffee_break"})
	s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
}

func (s *HandlerSuite) TestReadRoutesRequireAuditor() {
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/audit/events"},
		{http.MethodGet, "/audit/reports?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z"},
		{http.MethodGet, "/audit/compliance?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z"},
		{http.MethodGet, "/audit/export?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z"},
		{http.MethodPost, "/audit/archive"},
	} {
		w := s.do(route.method, route.path, member, nil)
		s.assertError(w, http.StatusForbidden, dErrors.CodeForbidden)
	}
}

func (s *HandlerSuite) TestQueryParsesFilter() {
	s.service.EXPECT().QueryEvents(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, f models.Filter) (*models.QueryResult, error) {
			s.Equal([]models.EventType{models.EventLoginFailed, models.EventPermissionDenied, models.EventDataAccess}, f.EventTypes)
			s.Equal([]models.RiskLevel{models.RiskHigh}, f.RiskLevels)
			s.Equal("alice", f.UserID)
			s.Require().NotNil(f.Start)
			s.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *f.Start)
			s.Nil(f.End)
			s.True(f.IncludeArchived)
			s.Equal(20, f.Limit)
			s.Equal(40, f.Offset)
			return &models.QueryResult{Events: []*models.Event{}, Total: 0, Limit: 20, Offset: 40}, nil
		})

	w := s.do(http.MethodGet,
		"/audit/events?event_type=LOGIN_FAILED,permission_denied&event_type=data_access&risk_level=high&user_id=alice"+
			"&start=2026-03-01T01:00:00%2B01:00&include_archived=true&limit=20&offset=40",
		auditor, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"events":[],"total":0,"limit":20,"offset":40}`, w.Body.String())
}

func (s *HandlerSuite) TestQueryRejectsMalformedParameters() {
	for _, path := range []string{
		"/audit/events?limit=ten",
		"/audit/events?start=yesterday",
		"/audit/events?include_archived=maybe",
	} {
		w := s.do(http.MethodGet, path, auditor, nil)
		s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
	}
}

func (s *HandlerSuite) TestReportRequiresRange() {
	w := s.do(http.MethodGet, "/audit/reports?start=2026-03-01T00:00:00Z", auditor, nil)
	s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidRequest)
}

func (s *HandlerSuite) TestReportPassesTopN() {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	s.service.EXPECT().GenerateReport(gomock.Any(), start, end, models.ReportOptions{TopN: 3}).
		Return(&models.Report{Start: start, End: end, TotalEvents: 7}, nil)

	w := s.do(http.MethodGet, "/audit/reports?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z&top_n=3", auditor, nil)
	s.Equal(http.StatusOK, w.Code)
	var body models.Report
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal(7, body.TotalEvents)
}

func (s *HandlerSuite) TestComplianceMapsDependencyFailure() {
	s.service.EXPECT().GenerateComplianceReport(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeDependencyFailure, "store down"))

	w := s.do(http.MethodGet, "/audit/compliance?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z", auditor, nil)
	s.assertError(w, http.StatusServiceUnavailable, dErrors.CodeDependencyFailure)
}

func (s *HandlerSuite) TestExportWritesAttachment() {
	s.service.EXPECT().ExportLogs(gomock.Any(), gomock.Any(), gomock.Any(), models.FormatCSV).
		Return([]byte("id,timestamp\n"), nil)

	w := s.do(http.MethodGet, "/audit/export?format=CSV&start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z", auditor, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("text/csv", w.Header().Get("Content-Type"))
	s.Equal("attachment; filename=audit-20260301-20260302.csv", w.Header().Get("Content-Disposition"))
	s.Equal("id,timestamp\n", w.Body.String())
}

func (s *HandlerSuite) TestExportUnsupportedFormat() {
	s.service.EXPECT().ExportLogs(gomock.Any(), gomock.Any(), gomock.Any(), models.ExportFormat("pdf")).
		Return(nil, dErrors.New(dErrors.CodeInvalidFormat, `unsupported export format "pdf"`))

	w := s.do(http.MethodGet, "/audit/export?format=pdf&start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z", auditor, nil)
	s.assertError(w, http.StatusBadRequest, dErrors.CodeInvalidFormat)
}

func (s *HandlerSuite) TestArchive() {
	s.service.EXPECT().ArchiveOldLogs(gomock.Any()).Return(&models.ArchiveResult{Archived: 4, Deleted: 1}, nil)

	w := s.do(http.MethodPost, "/audit/archive", auditor, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"archived":4,"deleted":1}`, w.Body.String())
}
