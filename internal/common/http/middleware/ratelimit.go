package middleware

import (
	"context"
	"fmt"
	"time"

	"pvjudge/internal/common/cache"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"
	"pvjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultRedisTimeout = 200 * time.Millisecond

// RateLimitPolicy is a fixed-window limit per client IP. Zero IPMax
// disables it.
type RateLimitPolicy struct {
	Window time.Duration `yaml:"window"`
	IPMax  int           `yaml:"ipMax"`
}

// RateLimiter counts requests per key in fixed windows stored in the cache.
type RateLimiter struct {
	cache        cache.BasicOps
	redisTimeout time.Duration
}

func NewRateLimiter(cacheClient cache.BasicOps, redisTimeout time.Duration) *RateLimiter {
	if redisTimeout <= 0 {
		redisTimeout = defaultRedisTimeout
	}
	return &RateLimiter{cache: cacheClient, redisTimeout: redisTimeout}
}

// Allow counts one request against key and fails with TooManyRequests
// once max is exceeded within window.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if l.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	count, err := l.cache.Incr(ctxCache, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		if err := l.cache.Expire(ctxCache, key, window); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
	}
	if count > int64(max) {
		return appErr.New(appErr.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

// RateLimitMiddleware enforces policy for one route. Cache failures let
// the request through.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.IPMax <= 0 {
			c.Next()
			return
		}
		window := policy.Window
		if window <= 0 {
			window = time.Minute
		}
		key := fmt.Sprintf("judge:rate:ip:%s:%s", c.ClientIP(), routeKey)
		if err := limiter.Allow(c.Request.Context(), key, policy.IPMax, window); err != nil {
			if appErr.Is(err, appErr.TooManyRequests) {
				response.AbortWithError(c, err)
				return
			}
			logger.Warn(c.Request.Context(), "rate limit unavailable", zap.Error(err))
		}
		c.Next()
	}
}
