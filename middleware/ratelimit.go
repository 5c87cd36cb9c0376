package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"teacher-dashboard-api/internal/logger"
	"teacher-dashboard-api/utils"
)

// RateLimitMiddleware counts requests per client IP and route in fixed Redis
// windows. With no Redis client, or when Redis errors, requests pass through.
func RateLimitMiddleware(rdb *redis.Client, limit, windowSeconds int) gin.HandlerFunc {
	window := time.Duration(windowSeconds) * time.Second
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 || c.FullPath() == "/health" {
			c.Next()
			return
		}

		key := "ratelimit:" + utils.GetClientIP(c.Request) + ":" + c.FullPath()
		ctx, cancel := context.WithTimeout(c.Request.Context(), utils.ShortTimeout)
		defer cancel()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Debug("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))
			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{
					"retry_after": windowSeconds,
					"limit":       limit,
				})
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
