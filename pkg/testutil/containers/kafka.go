//go:build integration

package containers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topics the service produces to or consumes from with default config.
var gatekeeperTopics = []string{
	"gatekeeper.notifications",
	"gatekeeper.security-alerts",
	"gatekeeper.audit-ingest",
}

// KafkaContainer is a single Redpanda broker.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

func startKafka() (*KafkaContainer, error) {
	ctx := context.Background()
	container, err := kafka.Run(ctx,
		"redpandadata/redpanda:latest",
		kafka.WithClusterID("gatekeeper-test"),
	)
	if err != nil {
		return nil, fmt.Errorf("run kafka: %w", err)
	}
	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("kafka brokers: %w", err)
	}
	k := &KafkaContainer{Container: container, Brokers: brokers[0]}
	if err := k.CreateTopic(ctx, 1, gatekeeperTopics...); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return k, nil
}

// CreateTopic creates single-replica topics. Existing topics are left alone.
func (k *KafkaContainer) CreateTopic(ctx context.Context, partitions int32, topics ...string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return fmt.Errorf("kafka admin client: %w", err)
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopics(ctx, partitions, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// ReadRecord reads topic from the start until a record matches or timeout
// passes. It returns nil when nothing matched.
func (k *KafkaContainer) ReadRecord(ctx context.Context, topic string, timeout time.Duration, match func(*kgo.Record) bool) (*kgo.Record, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka reader: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for ctx.Err() == nil {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, nil
		}
		var found *kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			if found == nil && match(r) {
				found = r
			}
		})
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}
