// Package kafka holds broker-level helpers shared by the producer and consumer.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

var errNoBrokers = errors.New("no kafka brokers configured")

// SplitBrokers parses a comma-separated bootstrap list.
func SplitBrokers(brokers string) []string {
	var out []string
	for b := range strings.SplitSeq(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// BrokerCheck backs the readiness check: it succeeds when any seed broker
// answers a metadata request within timeout.
func BrokerCheck(brokers string, timeout time.Duration) func(ctx context.Context) error {
	seeds := SplitBrokers(brokers)
	return func(ctx context.Context) error {
		if len(seeds) == 0 {
			return errNoBrokers
		}
		client, err := kgo.NewClient(kgo.SeedBrokers(seeds...), kgo.DialTimeout(timeout))
		if err != nil {
			return fmt.Errorf("kafka client: %w", err)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("no kafka brokers reachable: %w", err)
		}
		return nil
	}
}
