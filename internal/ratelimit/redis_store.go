package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window counters in Redis so limits hold across
// processes. INCR is atomic; the window TTL is set only when absent,
// which pins the window start to the first event.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func storeKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// Count returns the events recorded in the key's active window.
func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	count, err := s.client.Get(ctx, storeKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count, nil
}

// Increment atomically records one event, opening the window on the
// first event for the key.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) error {
	rkey := storeKey(key)

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, rkey)
	// NX keeps the TTL anchored to the first event of the window.
	pipe.ExpireNX(ctx, rkey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return nil
}
