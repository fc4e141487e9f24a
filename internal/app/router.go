package app

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	audithandler "gatekeeper/internal/audit/handler"
	"gatekeeper/internal/platform/metrics"
	workflowhandler "gatekeeper/internal/workflow/handler"
	"gatekeeper/pkg/platform/middleware/auth"
	"gatekeeper/pkg/platform/middleware/metadata"
	"gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/validation"
)

// buildRouter mounts health and metrics unauthenticated; everything else
// requires a bearer token.
func (a *App) buildRouter() (chi.Router, error) {
	meta, err := metadata.New(a.cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(a.logger))
	r.Use(request.RequestID)
	r.Use(meta.Handler)
	r.Use(request.Logger(a.logger))
	r.Use(request.Latency(request.NewMetrics(a.registry)))

	a.health.Register(r)
	r.Handle("/metrics", metrics.Handler(a.registry))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(a.cfg.Server.RequestTimeout))
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(a.Tokens, a.logger))

		workflowhandler.New(a.Workflows, a.logger).Register(r)
		audithandler.New(a.Audit, a.logger).Register(r)
		r.With(auth.RequireRole(RoleOperator, a.logger)).Post("/admin/jobs/{name}", a.handleRunJob)
	})
	return r, nil
}
