package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter shares rdb with the middleware. If rdb is nil or the
// ping fails, the limiters fall back to the in-process window.
func InitRedisRateLimiter(rdb *redis.Client) {
	if rdb == nil {
		redisClient = nil
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// keep serving without redis
		redisClient = nil
		return
	}
	redisClient = rdb
}

// RedisRateLimit implements a fixed-window limit per client IP using INCR/EXPIRE.
// key format: rl:<window_seconds>:<ip>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	fallback := SimpleRateLimit(maxRequests, window)
	return func(c *gin.Context) {
		if redisClient == nil {
			fallback(c)
			return
		}
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		limit(c, key, c.FullPath(), maxRequests, window, "X-RateLimit")
	}
}

// ActionRateLimit limits state-changing instructions per authenticated
// address. JWT must run first.
func ActionRateLimit(maxActions int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		address, ok := Address(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if redisClient == nil {
			// fail-open without redis
			c.Next()
			return
		}
		key := "action_rl:" + address + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		limit(c, key, "action:"+c.FullPath(), maxActions, window, "X-ActionRateLimit")
	}
}

func limit(c *gin.Context, key, endpoint string, maxReq int, window time.Duration, header string) {
	ctx := c.Request.Context()

	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		// fail-open on redis errors
		c.Header(header+"-Error", "redis-error")
		c.Next()
		return
	}
	if val == 1 {
		redisClient.Expire(ctx, key, window)
	}

	c.Header(header+"-Limit", strconv.Itoa(maxReq))
	c.Header(header+"-Remaining", strconv.FormatInt(max64(0, int64(maxReq)-val), 10))

	if val > int64(maxReq) {
		RLBlocked.WithLabelValues(endpoint).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": int(window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(endpoint).Inc()
	c.Next()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
