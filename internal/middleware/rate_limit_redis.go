package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces rate limit keys in a shared Redis.
const RedisKeyPrefix = "contactmailer:ratelimit:"

// RedisCounter implements Counter on Redis so several replicas share one
// budget per client. INCR and EXPIRE NX run inside MULTI/EXEC, so the window
// is set by the first hit only and never extended. Requires Redis 7 or later.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCounter creates a counter on top of client.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client, prefix: RedisKeyPrefix}
}

// Hit implements Counter.
func (c *RedisCounter) Hit(ctx context.Context, key string, _ int, window time.Duration) (int64, time.Duration, error) {
	key = c.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit counter %q: %w", key, err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = window
	}
	return incr.Val(), ttl, nil
}
