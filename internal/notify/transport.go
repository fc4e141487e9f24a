package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gatekeeper/internal/platform/kafka/producer"
)

// KafkaTransport publishes each notification as JSON keyed by recipient so a
// recipient's notifications stay ordered within a partition.
type KafkaTransport struct {
	publisher producer.Publisher
	topic     string
}

func NewKafkaTransport(publisher producer.Publisher, topic string) *KafkaTransport {
	return &KafkaTransport{publisher: publisher, topic: topic}
}

func (t *KafkaTransport) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return t.publisher.Produce(ctx, &producer.Message{
		Topic: t.topic,
		Key:   []byte(n.RecipientID),
		Value: payload,
		Headers: map[string]string{
			"event_type":  string(n.EventType),
			"workflow_id": n.WorkflowID.String(),
		},
	})
}

// LogTransport writes notifications to the log. Used when no broker is configured.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, n Notification) error {
	t.logger.InfoContext(ctx, "notification",
		"recipient_id", n.RecipientID,
		"event_type", n.EventType,
		"workflow_id", n.WorkflowID,
		"operation_id", n.OperationID,
	)
	return nil
}

// MultiTransport sends to every transport and joins their errors.
type MultiTransport []Transport

func (m MultiTransport) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Transport = (*KafkaTransport)(nil)
	_ Transport = (*LogTransport)(nil)
	_ Transport = MultiTransport(nil)
)
