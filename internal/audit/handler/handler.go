package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/audit/export"
	"gatekeeper/internal/audit/models"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

// RoleAuditor grants read access to the audit trail and retention control.
const RoleAuditor = "auditor"

// Service defines the audit operations exposed over HTTP.
type Service interface {
	LogEvent(ctx context.Context, req *models.LogRequest) (*models.Event, error)
	QueryEvents(ctx context.Context, f models.Filter) (*models.QueryResult, error)
	GenerateReport(ctx context.Context, start, end time.Time, opts models.ReportOptions) (*models.Report, error)
	GenerateComplianceReport(ctx context.Context, start, end time.Time) (*models.ComplianceReport, error)
	ExportLogs(ctx context.Context, start, end time.Time, format models.ExportFormat) ([]byte, error)
	ArchiveOldLogs(ctx context.Context) (*models.ArchiveResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the audit routes. Any authenticated caller may record an
// event; everything else needs the auditor role.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit/events", h.HandleLogEvent)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuditor)
		r.Get("/audit/events", h.HandleQuery)
		r.Get("/audit/reports", h.HandleReport)
		r.Get("/audit/compliance", h.HandleCompliance)
		r.Get("/audit/export", h.HandleExport)
		r.Post("/audit/archive", h.HandleArchive)
	})
}

func (h *Handler) requireAuditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !requestcontext.HasRole(ctx, RoleAuditor) {
			h.logger.WarnContext(ctx, "audit access denied",
				"user_id", requestcontext.UserID(ctx),
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "auditor role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleLogEvent records an event. Address and user agent default to the
// request's own when the body leaves them empty. Only an auditor may record an
// event for another user or for an agent alone; anyone else is recorded as
// the user on every event they submit.
func (h *Handler) HandleLogEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.LogRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	switch {
	case requestcontext.HasRole(ctx, RoleAuditor):
		if req.UserID == "" && req.AgentID == "" {
			req.UserID = userID
		}
	case req.UserID != "" && req.UserID != userID:
		h.logger.WarnContext(ctx, "audit event for another user rejected",
			"user_id", userID,
			"event_user_id", req.UserID,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "events may only be recorded for the calling user"))
		return
	default:
		req.UserID = userID
	}
	if req.IPAddress == "" {
		req.IPAddress = requestcontext.ClientIP(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = requestcontext.UserAgent(ctx)
	}

	event, err := h.service.LogEvent(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "log audit event failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.QueryEvents(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "query audit events failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := parseRange(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var opts models.ReportOptions
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		if opts.TopN, err = strconv.Atoi(raw); err != nil || opts.TopN < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "top_n must be a positive integer"))
			return
		}
	}

	report, err := h.service.GenerateReport(ctx, start, end, opts)
	if err != nil {
		h.logger.ErrorContext(ctx, "generate report failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := parseRange(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.service.GenerateComplianceReport(ctx, start, end)
	if err != nil {
		h.logger.ErrorContext(ctx, "generate compliance report failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleExport streams the export as an attachment. Format defaults to json.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := parseRange(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if format == "" {
		format = models.FormatJSON
	}

	body, err := h.service.ExportLogs(ctx, start, end, format)
	if err != nil {
		h.logger.WarnContext(ctx, "export audit logs failed", "error", err, "format", format, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	filename := fmt.Sprintf("audit-%s-%s.%s", start.UTC().Format("20060102"), end.UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.ArchiveOldLogs(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "archive audit logs failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit archive triggered",
		"user_id", requestcontext.UserID(ctx),
		"archived", result.Archived,
		"deleted", result.Deleted,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
