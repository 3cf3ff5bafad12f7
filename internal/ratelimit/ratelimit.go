// Package ratelimit throttles sensitive routes per identifier.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ctonjob/internal/config"
)

// Rule 表示某一类请求的限流规则：window 内最多 Limit 次。
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	Default     = Rule{Name: "default", Limit: 10, Window: time.Minute}
	PostJob     = Rule{Name: "post_job", Limit: 3, Window: time.Minute}
	CreateVideo = Rule{Name: "video_job", Limit: 5, Window: time.Minute}
	Signup      = Rule{Name: "signup", Limit: 5, Window: time.Hour}
)

// Limiter 判断某个标识在规则下是否仍可放行。
type Limiter interface {
	Allow(ctx context.Context, rule Rule, id string) (bool, error)
}

// New builds the limiter selected by configuration.
func New(cfg config.RateLimitConfig, client redis.UniversalClient) (Limiter, error) {
	switch cfg.Backend {
	case "", config.RateLimitBackendMemory:
		return NewMemoryLimiter(), nil
	case config.RateLimitBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis rate limiter requires a redis client")
		}
		return NewRedisLimiter(client), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

func key(rule Rule, id string) string {
	return "rate:" + rule.Name + ":" + id
}
