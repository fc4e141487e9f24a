package alerting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow implements WindowStore with one sorted set per key, scored by
// event time in milliseconds. Suppression markers are plain keys with a TTL.
type RedisWindow struct {
	client redis.Cmdable
}

func NewRedisWindow(client redis.Cmdable) *RedisWindow {
	return &RedisWindow{client: client}
}

func (w *RedisWindow) Add(ctx context.Context, key, member string, at time.Time, window time.Duration) (int, error) {
	cutoff := strconv.FormatInt(at.Add(-window).UnixMilli(), 10)
	var card *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update alert window: %w", err)
	}
	return int(card.Val()), nil
}

func (w *RedisWindow) TrySuppress(ctx context.Context, key string, ttl time.Duration, now time.Time) (bool, error) {
	ok, err := w.client.SetNX(ctx, key, now.UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim alert suppression: %w", err)
	}
	return ok, nil
}

var (
	_ WindowStore = (*MemoryWindow)(nil)
	_ WindowStore = (*RedisWindow)(nil)
)
