package service

import (
	"bytes"
	"context"
	"strings"
	"time"

	"gatekeeper/internal/audit/export"
	"gatekeeper/internal/audit/models"
	dErrors "gatekeeper/pkg/domain-errors"
)

// ExportLogs serializes every event in [start, end), oldest first. It has no
// side effects; an unsupported format fails before the store is read.
func (s *Service) ExportLogs(ctx context.Context, start, end time.Time, format models.ExportFormat) (_ []byte, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.export_logs")
	defer func() { span.End(err) }()

	format = models.ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if !format.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidFormat, "unsupported export format %q", format)
	}
	if err := validateRange(start, end, s.cfg.MaxRange); err != nil {
		return nil, err
	}
	events, err := s.store.ListRange(ctx, start, end)
	if err != nil {
		return nil, dependencyFailure(err, "failed to load audit events")
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, events); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode export")
	}
	return buf.Bytes(), nil
}
