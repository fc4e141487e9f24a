// Package keylock serializes work per resource key using a fixed set of shards.
package keylock

import (
	"context"
	"hash/fnv"
)

const defaultShards = 32

// Sharded hands out per-key exclusive sections. Keys that hash to the same
// shard share a lock; distinct shards never contend.
// Acquisition honours context cancellation so a wedged holder cannot block
// callers past their deadline.
type Sharded struct {
	shards []chan struct{}
}

// New creates a Sharded lock with n shards (32 when n <= 0).
func New(n int) *Sharded {
	if n <= 0 {
		n = defaultShards
	}
	s := &Sharded{shards: make([]chan struct{}, n)}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	return s
}

// Lock acquires the shard for key, or returns ctx.Err() if ctx ends first.
func (s *Sharded) Lock(ctx context.Context, key string) error {
	select {
	case s.shards[s.shardFor(key)] <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the shard for key. It must follow a successful Lock.
func (s *Sharded) Unlock(key string) {
	<-s.shards[s.shardFor(key)]
}

// Do runs fn while holding the lock for key.
func (s *Sharded) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := s.Lock(ctx, key); err != nil {
		return err
	}
	defer s.Unlock(key)
	return fn(ctx)
}

// shardFor maps key to a shard index. Empty keys use shard 0.
func (s *Sharded) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}
