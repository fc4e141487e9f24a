// Package ingest records audit events published to Kafka by other services.
//
// A message value is a LogRequest in JSON. The message key, when it is an
// event id and the payload carries none, becomes the event id, so a producer
// that republishes after a failure is recorded once.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gatekeeper/internal/audit/metrics"
	"gatekeeper/internal/audit/models"
	"gatekeeper/internal/platform/kafka/consumer"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Outcome labels for the ingest counter.
const (
	OutcomeRecorded  = "recorded"
	OutcomeMalformed = "malformed"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// AuditLogger is the subset of the audit service the consumer drives.
type AuditLogger interface {
	LogEvent(ctx context.Context, req *models.LogRequest) (*models.Event, error)
}

// Handler implements consumer.Handler. Messages that can never be recorded
// are committed; store failures are returned so the message is redelivered.
type Handler struct {
	audit   AuditLogger
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(audit AuditLogger, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{audit: audit, logger: logger, metrics: m}
}

var _ consumer.Handler = (*Handler)(nil)

func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var req models.LogRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		h.logger.ErrorContext(ctx, "malformed audit message skipped",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		h.count(OutcomeMalformed)
		return nil
	}
	if req.EventID == "" && len(msg.Key) > 0 {
		if eventID, err := id.ParseEventID(string(msg.Key)); err == nil {
			req.EventID = eventID.String()
		}
	}

	event, err := h.audit.LogEvent(ctx, &req)
	if err != nil {
		if retryable(err) {
			h.logger.ErrorContext(ctx, "audit message not recorded, awaiting redelivery",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"event_type", req.EventType,
				"error", err,
			)
			h.count(OutcomeFailed)
			return fmt.Errorf("record audit message at offset %d: %w", msg.Offset, err)
		}
		h.logger.WarnContext(ctx, "invalid audit message skipped",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"event_type", req.EventType,
			"error", err,
		)
		h.count(OutcomeInvalid)
		return nil
	}

	h.logger.DebugContext(ctx, "audit message recorded",
		"event_id", event.ID,
		"event_type", event.EventType,
		"offset", msg.Offset,
	)
	h.count(OutcomeRecorded)
	return nil
}

// retryable reports whether redelivery could succeed. Only client errors are
// permanent.
func retryable(err error) bool {
	return !dErrors.CodeOf(err).Malformed()
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.IncrementIngested(outcome)
	}
}
