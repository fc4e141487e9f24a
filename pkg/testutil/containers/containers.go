//go:build integration

// Package containers starts the backing services for integration tests.
// Each service is started at most once per test binary and shared by every
// suite in it; Ryuk reaps the containers when the process exits.
package containers

import (
	"sync"
	"testing"
)

// shared starts a container on first use and remembers the outcome, so a
// failed start fails every later caller instead of retrying.
type shared[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (s *shared[T]) get(t *testing.T, start func() (T, error)) T {
	t.Helper()
	s.once.Do(func() { s.val, s.err = start() })
	if s.err != nil {
		t.Fatalf("start container: %v", s.err)
	}
	return s.val
}

// Manager hands out the shared Postgres, Redis and Kafka fixtures.
type Manager struct {
	postgres shared[*PostgresContainer]
	redis    shared[*RedisContainer]
	kafka    shared[*KafkaContainer]
}

var manager = &Manager{}

func GetManager() *Manager { return manager }

// GetPostgres returns a migrated gatekeeper database.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, startPostgres)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, startRedis)
}

// GetKafka returns a broker with the gatekeeper topics already created.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, startKafka)
}
