// Package consumer reads Kafka topics with confluent-kafka-go and commits
// offsets only after the handler succeeds (at-least-once).
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Message represents a received Kafka message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes consumed messages.
type Handler interface {
	// Handle processes a message. Returning an error skips the commit so the
	// message is redelivered.
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Config holds consumer configuration.
type Config struct {
	Brokers         string
	GroupID         string
	Topics          []string
	AutoOffsetReset string
	PollTimeout     time.Duration
}

// Consumer wraps the confluent-kafka-go consumer.
type Consumer struct {
	consumer    *kafka.Consumer
	handler     Handler
	logger      *slog.Logger
	pollTimeout time.Duration

	mu      sync.Mutex
	running bool
	closed  bool
}

// New creates a consumer subscribed to cfg.Topics.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group ID not configured")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka consumer topics not configured")
	}

	autoOffsetReset := cfg.AutoOffsetReset
	if autoOffsetReset == "" {
		autoOffsetReset = "earliest"
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 100 * time.Millisecond
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  autoOffsetReset,
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if err := c.SubscribeTopics(cfg.Topics, nil); err != nil {
		c.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("subscribe to topics: %w", err)
	}

	return &Consumer{
		consumer:    c,
		handler:     handler,
		logger:      logger,
		pollTimeout: pollTimeout,
	}, nil
}

// Run polls until ctx is cancelled, then closes the consumer.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("consumer already started")
	}
	c.running = true
	c.mu.Unlock()

	defer c.close()

	for ctx.Err() == nil {
		c.poll(ctx)
	}
	return nil
}

func (c *Consumer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if err := c.consumer.Close(); err != nil && c.logger != nil {
		c.logger.Warn("kafka consumer close failed", "error", err)
	}
}

func (c *Consumer) poll(ctx context.Context) {
	ev := c.consumer.Poll(int(c.pollTimeout.Milliseconds()))
	if ev == nil {
		return
	}

	switch e := ev.(type) {
	case *kafka.Message:
		c.handleMessage(ctx, e)
	case kafka.Error:
		if e.Code() != kafka.ErrTimedOut && c.logger != nil {
			c.logger.Error("kafka consumer error",
				"code", e.Code(),
				"error", e.Error(),
			)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, km *kafka.Message) {
	msg := fromKafka(km)

	if err := c.handler.Handle(ctx, msg); err != nil {
		if c.logger != nil {
			c.logger.Error("failed to handle message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		c.rewind(km)
		return
	}

	if _, err := c.consumer.CommitMessage(km); err != nil && c.logger != nil {
		c.logger.Error("failed to commit offset",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// rewind seeks back to a failed message so the next poll redelivers it.
func (c *Consumer) rewind(km *kafka.Message) {
	if err := c.consumer.Seek(km.TopicPartition, -1); err != nil && c.logger != nil {
		c.logger.Warn("failed to rewind partition", "error", err)
	}
}

func fromKafka(km *kafka.Message) *Message {
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	var topic string
	if km.TopicPartition.Topic != nil {
		topic = *km.TopicPartition.Topic
	}
	return &Message{
		Topic:     topic,
		Partition: km.TopicPartition.Partition,
		Offset:    int64(km.TopicPartition.Offset),
		Key:       km.Key,
		Value:     km.Value,
		Headers:   headers,
		Timestamp: km.Timestamp,
	}
}

// Health reports whether the consumer is running with partition assignments.
func (c *Consumer) Health(context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("consumer closed")
	}
	assignment, err := c.consumer.Assignment()
	if err != nil {
		return fmt.Errorf("read assignment: %w", err)
	}
	if len(assignment) == 0 {
		return fmt.Errorf("no partitions assigned")
	}
	return nil
}
