package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter 是 IncrWithTTL 所需的最小 Redis 接口。
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// IncrWithTTL increments key and sets its TTL on the first hit.
func IncrWithTTL(ctx context.Context, client Counter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// RedisLimiter 使用 Redis 共享计数，适用于多实例部署。
type RedisLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisLimiter returns a limiter backed by fixed windows in redis.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// Allow counts the hit in the current window bucket.
func (l *RedisLimiter) Allow(ctx context.Context, rule Rule, id string) (bool, error) {
	window := l.now().UnixNano() / int64(rule.Window)
	k := fmt.Sprintf("%s:%d", key(rule, id), window)

	count, err := IncrWithTTL(ctx, l.client, k, rule.Window)
	if err != nil {
		return false, fmt.Errorf("incr rate counter: %w", err)
	}
	return count <= int64(rule.Limit), nil
}
