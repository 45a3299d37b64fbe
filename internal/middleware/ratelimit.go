package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/pkg/config"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/response"
)

// RateLimit bounds requests per client IP over a fixed window backed by
// Redis. When Redis is unreachable requests pass through; availability of
// the API wins over strictness of the limiter.
func RateLimit(client *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if !cfg.Enabled || client == nil {
			c.Next()
			return
		}

		window := time.Now().Unix() / int64(cfg.Window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), window)

		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(c.Request.Context(), key, cfg.Window).Err(); err != nil {
				logger.Warn("failed to set rate limit expiry", zap.Error(err))
			}
		}

		if count > int64(cfg.Requests) {
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
