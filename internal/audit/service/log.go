package service

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/audit/models"
	"gatekeeper/internal/platform/tracer"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
)

// LogEvent classifies, persists and inspects one event. The event is durable
// once this returns; alerting runs afterwards and cannot fail the call.
//
// A request carrying an event_id that was already recorded is acknowledged
// with the stored event, without being stored or inspected again.
func (s *Service) LogEvent(ctx context.Context, req *models.LogRequest) (_ *models.Event, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.log_event")
	defer func() { span.End(err) }()

	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	req.Sanitize()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	eventID := id.NewEventID()
	if req.EventID != "" {
		if eventID, err = id.ParseEventID(req.EventID); err != nil {
			return nil, err
		}
	}
	e := &models.Event{
		ID:           eventID,
		EventType:    req.EventType,
		UserID:       req.UserID,
		AgentID:      req.AgentID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Details:      req.Details,
		RiskLevel:    models.ClassifyRisk(req.EventType, req.RiskLevel, req.Details),
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Timestamp:    s.clock.Now().UTC().Truncate(time.Microsecond),
	}
	span.SetAttributes(
		tracer.String(tracer.AttrEventType, string(e.EventType)),
		tracer.String(tracer.AttrRiskLevel, string(e.RiskLevel)),
	)

	if err := s.store.Append(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.logger.InfoContext(ctx, "duplicate audit event skipped",
				"event_id", e.ID,
				"event_type", e.EventType,
			)
			if s.metrics != nil {
				s.metrics.IncrementDuplicate()
			}
			stored, err := s.store.Get(ctx, e.ID)
			if err != nil {
				return nil, dependencyFailure(err, "failed to load recorded audit event")
			}
			return stored, nil
		}
		return nil, dependencyFailure(err, "failed to record audit event")
	}

	if s.metrics != nil {
		s.metrics.IncrementLogged(string(e.EventType), string(e.RiskLevel))
	}
	s.inspect(ctx, e)
	return e, nil
}

func (s *Service) inspect(ctx context.Context, e *models.Event) {
	if s.detector == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AlertTimeout)
	defer cancel()

	for _, a := range s.detector.Inspect(alertCtx, e) {
		s.logger.InfoContext(ctx, "audit alert raised",
			"rule", a.Rule,
			"user_id", a.UserID,
			"event_id", e.ID,
		)
	}
}
