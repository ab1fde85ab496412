package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// triggerAttempt tracks manual-trigger requests from one IP
type triggerAttempt struct {
	count   int
	firstAt time.Time
}

// RateLimiter throttles the manual trigger route so a misbehaving
// client cannot hammer the scanning engine
type RateLimiter struct {
	mu           sync.Mutex
	attempts     map[string]*triggerAttempt
	maxAttempts  int
	windowPeriod time.Duration
}

// NewRateLimiter creates a rate limiter allowing maxAttempts requests
// per IP within windowPeriod
func NewRateLimiter(maxAttempts int, windowPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:     make(map[string]*triggerAttempt),
		maxAttempts:  maxAttempts,
		windowPeriod: windowPeriod,
	}
}

// Allow reports whether the IP may trigger another run
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	attempt, ok := rl.attempts[ip]
	if !ok || now.Sub(attempt.firstAt) > rl.windowPeriod {
		rl.attempts[ip] = &triggerAttempt{count: 1, firstAt: now}
		return true
	}
	attempt.count++
	return attempt.count <= rl.maxAttempts
}

// TriggerRateLimitMiddleware rejects requests past the per-IP budget
func TriggerRateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many trigger requests, slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
