package service

import (
	"context"

	"gatekeeper/internal/audit/models"
	dErrors "gatekeeper/pkg/domain-errors"
)

// QueryEvents returns one page of events matching f, newest first. A zero
// limit takes the default; larger limits are capped at the configured maximum.
func (s *Service) QueryEvents(ctx context.Context, f models.Filter) (_ *models.QueryResult, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.query_events")
	defer func() { span.End(err) }()

	if err := s.normalizeFilter(&f); err != nil {
		return nil, err
	}
	events, total, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, dependencyFailure(err, "failed to query audit events")
	}
	if events == nil {
		events = []*models.Event{}
	}
	return &models.QueryResult{
		Events: events,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}, nil
}

func (s *Service) normalizeFilter(f *models.Filter) error {
	if f.Offset < 0 {
		return dErrors.New(dErrors.CodeInvalidRequest, "offset must not be negative")
	}
	if f.Limit < 0 {
		return dErrors.New(dErrors.CodeInvalidRequest, "limit must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = s.cfg.QueryDefaultLimit
	}
	f.Limit = min(f.Limit, s.cfg.QueryMaxLimit)

	if f.Start != nil && f.End != nil && !f.End.After(*f.Start) {
		return dErrors.New(dErrors.CodeInvalidRequest, "end must be after start")
	}
	for _, t := range f.EventTypes {
		if !t.IsValid() {
			return dErrors.New(dErrors.CodeInvalidRequest, "unknown event_type: "+string(t))
		}
	}
	for _, r := range f.RiskLevels {
		if !r.IsValid() {
			return dErrors.New(dErrors.CodeInvalidRequest, "unknown risk_level: "+string(r))
		}
	}
	return nil
}
