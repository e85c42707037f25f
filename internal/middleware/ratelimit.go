package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/keyfort/provider-bridge/internal/logger"
)

// RateLimiter holds the configuration for per-origin rate limiting on the
// RPC surface. Each calling origin gets its own token bucket so one noisy
// dApp cannot starve the rest.
type RateLimiter struct {
	// limiters stores rate limiters per origin
	limiters sync.Map
	// rate is the number of requests per second allowed
	rate int
	// burst is the maximum burst size
	burst int
	// cleanupInterval is how often to clean up old limiters
	cleanupInterval time.Duration
}

// limiterEntry holds a rate limiter and its last access time. lastAccess is
// a Unix timestamp touched by request goroutines and read by the cleanup
// goroutine, so it is atomic.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// NewRateLimiter creates a new rate limiter with the specified rate and burst
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:            requestsPerSecond,
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// cleanup periodically removes limiters that haven't been accessed recently
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		// Remove limiters that haven't been accessed in 10 minutes
		rl.removeIdle(10 * time.Minute)
	}
}

// removeIdle evicts limiters idle for longer than maxIdle
func (rl *RateLimiter) removeIdle(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle).Unix()
	rl.limiters.Range(func(key, value interface{}) bool {
		if entry, ok := value.(*limiterEntry); ok {
			if entry.lastAccess.Load() < cutoff {
				rl.limiters.Delete(key)
			}
		}
		return true
	})
}

// getLimiter returns the rate limiter for a specific origin
func (rl *RateLimiter) getLimiter(origin string) *rate.Limiter {
	if val, ok := rl.limiters.Load(origin); ok {
		entry := val.(*limiterEntry)
		entry.lastAccess.Store(time.Now().Unix())
		return entry.limiter
	}

	entry := &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
	}
	entry.lastAccess.Store(time.Now().Unix())

	// Store it (handle race condition where another goroutine created it)
	actual, _ := rl.limiters.LoadOrStore(origin, entry)
	return actual.(*limiterEntry).limiter
}

// callerOrigin identifies the client for rate-limiting purposes. Origins are
// the unit of trust, so they are also the unit of throttling; callers
// without one fall back to their IP.
func callerOrigin(c *gin.Context) string {
	if origin := c.GetHeader("X-Caller-Origin"); origin != "" {
		return fmt.Sprintf("origin:%s", origin)
	}

	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = "unknown"
	}
	return fmt.Sprintf("ip:%s", clientIP)
}

// Middleware returns a Gin middleware handler for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip rate limiting for health check endpoints
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}

		origin := callerOrigin(c)
		limiter := rl.getLimiter(origin)

		if !limiter.Allow() {
			if logger.Log != nil {
				logger.Log.Warn("Rate limit exceeded",
					zap.String("origin", origin),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.burst))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))

		c.Next()
	}
}
