package service

import (
	"context"

	"gatekeeper/internal/audit/models"
	"gatekeeper/internal/platform/tracer"
)

// ArchiveOldLogs runs one retention pass. Archived events past the retention
// age are deleted first; then events past the archive age are flagged. An
// event is therefore always archived in an earlier pass than it is deleted.
func (s *Service) ArchiveOldLogs(ctx context.Context) (_ *models.ArchiveResult, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.archive_old_logs")
	defer func() { span.End(err) }()

	now := s.clock.Now().UTC()
	deleted, err := s.store.DeleteArchived(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return nil, dependencyFailure(err, "failed to delete archived audit events")
	}
	archived, err := s.store.MarkArchived(ctx, now.Add(-s.cfg.ArchiveAfter), now)
	if err != nil {
		return nil, dependencyFailure(err, "failed to archive audit events")
	}

	result := &models.ArchiveResult{Archived: archived, Deleted: deleted}
	span.SetAttributes(
		tracer.Int(tracer.AttrSweepItems, archived),
		tracer.Int("audit.deleted", deleted),
	)
	s.logger.InfoContext(ctx, "audit retention pass complete",
		"archived", archived,
		"deleted", deleted,
	)
	if s.metrics != nil {
		s.metrics.AddArchive(archived, deleted)
	}
	return result, nil
}
