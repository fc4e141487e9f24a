package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

// Service defines the workflow operations exposed over HTTP.
// The caller is always the authenticated user; the handler never accepts an
// approver or requester id from the body.
type Service interface {
	CreateWorkflow(ctx context.Context, requestedBy string, req *models.CreateRequest) (*models.Workflow, error)
	GetStatus(ctx context.Context, workflowID id.WorkflowID) (*models.StatusSnapshot, error)
	RecordDecision(ctx context.Context, workflowID id.WorkflowID, approverID string, req *models.DecisionRequest) (*models.StatusSnapshot, error)
	CancelWorkflow(ctx context.Context, workflowID id.WorkflowID, cancelledBy string, req *models.CancelRequest) (*models.Workflow, error)
	ListUserWorkflows(ctx context.Context, userID string, status *models.Status) ([]*models.Workflow, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the workflow routes. Routes expect RequireAuth upstream.
func (h *Handler) Register(r chi.Router) {
	r.Post("/workflows", h.HandleCreate)
	r.Get("/workflows/{id}", h.HandleGetStatus)
	r.Post("/workflows/{id}/decisions", h.HandleDecision)
	r.Post("/workflows/{id}/cancel", h.HandleCancel)
	r.Get("/me/workflows", h.HandleListMine)
}

// HandleCreate opens a workflow requested by the caller.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	workflow, err := h.service.CreateWorkflow(ctx, userID, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "create workflow failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toWorkflowResponse(workflow))
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	workflowID, ok := parseWorkflowID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.service.GetStatus(ctx, workflowID)
	if err != nil {
		h.logger.WarnContext(ctx, "get workflow status failed", "error", err, "request_id", requestID, "workflow_id", workflowID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(snapshot))
}

// HandleDecision records the caller's verdict on a workflow.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	workflowID, ok := parseWorkflowID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	snapshot, err := h.service.RecordDecision(ctx, workflowID, userID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "record decision failed",
			"error", err,
			"request_id", requestID,
			"workflow_id", workflowID,
			"approver_id", userID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(snapshot))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	workflowID, ok := parseWorkflowID(w, r)
	if !ok {
		return
	}

	// The reason is optional, so an empty body is accepted.
	req := &models.CancelRequest{}
	if r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[models.CancelRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		req = decoded
	}

	workflow, err := h.service.CancelWorkflow(ctx, workflowID, userID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "cancel workflow failed", "error", err, "request_id", requestID, "workflow_id", workflowID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toWorkflowResponse(workflow))
}

// HandleListMine lists workflows the caller requested or must approve.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var status *models.Status
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); raw != "" {
		st := models.Status(raw)
		if !st.IsValid() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "invalid status filter"))
			return
		}
		status = &st
	}

	workflows, err := h.service.ListUserWorkflows(ctx, userID, status)
	if err != nil {
		h.logger.ErrorContext(ctx, "list workflows failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	resp := &ListResponse{Workflows: make([]*WorkflowResponse, 0, len(workflows))}
	for _, wf := range workflows {
		resp.Workflows = append(resp.Workflows, toWorkflowResponse(wf))
	}
	resp.Total = len(resp.Workflows)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseWorkflowID(w http.ResponseWriter, r *http.Request) (id.WorkflowID, bool) {
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "invalid workflow id"))
		return id.WorkflowID{}, false
	}
	return workflowID, true
}
