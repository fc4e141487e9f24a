package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gatekeeper/internal/platform/kafka/producer"
)

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Alert) error

func (f SinkFunc) Send(ctx context.Context, a Alert) error { return f(ctx, a) }

// LogSink writes alerts to the log at warn level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, a Alert) error {
	s.logger.WarnContext(ctx, "security alert",
		"rule", a.Rule,
		"message", a.Message,
		"user_id", a.UserID,
		"event_id", a.EventID,
		"event_type", a.EventType,
		"risk_level", a.RiskLevel,
		"count", a.Count,
	)
	return nil
}

// KafkaSink publishes alerts as JSON keyed by user.
type KafkaSink struct {
	publisher producer.Publisher
	topic     string
}

func NewKafkaSink(publisher producer.Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Send(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return s.publisher.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(a.UserID),
		Value: payload,
		Headers: map[string]string{
			"rule":       a.Rule,
			"risk_level": string(a.RiskLevel),
		},
	})
}

// MultiSink sends to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*KafkaSink)(nil)
	_ Sink = MultiSink(nil)
)
