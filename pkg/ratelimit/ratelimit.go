package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of requests allowed per second
	Rate float64
	// Burst is the maximum number of requests allowed in a burst
	Burst int
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration
}

// DefaultAdminConfig returns the limits applied to the admin endpoints: 20 req/s per client, burst of 50.
func DefaultAdminConfig() Config {
	return Config{
		Rate:            20,
		Burst:           50,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientRateLimiter keeps one token bucket per client key with automatic cleanup.
// The key is the basic auth user when one is set on the request context, the client IP otherwise.
type ClientRateLimiter struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
	done    chan struct{}
	once    sync.Once
}

func New(cfg Config) *ClientRateLimiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}

	rl := &ClientRateLimiter{
		entries: make(map[string]*entry),
		config:  cfg,
		done:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow checks if a request for the given client key should be allowed.
func (rl *ClientRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.entries[key]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst),
		}
		rl.entries[key] = e
	}
	e.lastAccess = time.Now()

	return e.limiter.Allow()
}

// Middleware returns a Gin middleware that applies the limit. Mount it after
// gin.BasicAuth so authenticated callers are tracked by user name.
func (rl *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(clientKey(c)) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if user := c.GetString(gin.AuthUserKey); user != "" {
		return "user:" + user
	}
	return "ip:" + c.ClientIP()
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *ClientRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *ClientRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

func (rl *ClientRateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.config.MaxAge {
			delete(rl.entries, key)
		}
	}
}

// Len returns the current number of tracked clients.
func (rl *ClientRateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

func (rl *ClientRateLimiter) Config() Config {
	return rl.config
}
