package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ctonjob/internal/metrics"
	"ctonjob/internal/ratelimit"
)

const rateLimitedMessage = "Trop de requêtes, réessayez plus tard"

// KeyFunc extracts the identifier a rate limit is applied to.
type KeyFunc func(c *gin.Context) string

// ByUser keys on the authenticated user, falling back to the client IP.
func ByUser(c *gin.Context) string {
	if id, ok := UserID(c); ok {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

// ByIP keys on the client IP.
func ByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// RateLimit 对路由按 key 限流，超限返回 429。
// 限流器自身出错时放行并记录日志。
func RateLimit(limiter ratelimit.Limiter, rule ratelimit.Rule, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), rule, key(c))
		if err != nil {
			LoggerFromContext(c).Warn("rate limiter unavailable",
				slog.String("rule", rule.Name),
				slog.Any("error", err),
			)
			c.Next()
			return
		}
		if !allowed {
			metrics.ObserveRateLimited(rule.Name)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": rateLimitedMessage})
			return
		}
		c.Next()
	}
}
