// internal/api/ratelimit.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

const (
	// limiterIdleTTL is how long an unused credential keeps its limiter.
	limiterIdleTTL = 10 * time.Minute
	// limiterSweepInterval bounds how often the pool scans for idle entries.
	limiterSweepInterval = time.Minute
)

var errRateLimited = errors.NewStd("rate limit exceeded")

// limiterPool hands out one token bucket per credential so a single
// noisy client cannot exhaust the submission budget for everyone.
type limiterPool struct {
	mu        sync.Mutex
	entries   map[string]*poolEntry
	perSecond rate.Limit
	burst     int
	lastSweep time.Time
}

type poolEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(perMinute, burst int) *limiterPool {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		entries:   make(map[string]*poolEntry),
		perSecond: rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether the credential may proceed, consuming one token.
func (p *limiterPool) allow(credential string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastSweep) > limiterSweepInterval {
		for key, entry := range p.entries {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(p.entries, key)
			}
		}
		p.lastSweep = now
	}

	entry, ok := p.entries[credential]
	if !ok {
		entry = &poolEntry{limiter: rate.NewLimiter(p.perSecond, p.burst)}
		p.entries[credential] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// size reports the number of tracked credentials.
func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RateLimitMiddleware enforces the per-credential submission rate.
// Requests without a resolved credential fall back to the client IP.
func (c *Controller) RateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			credential, _ := ctx.Get(credentialContextKey).(string)
			if credential == "" {
				credential = ctx.RealIP()
			}

			if !c.limiters.allow(credential) {
				if m := c.apiMetrics(); m != nil {
					m.IncrementRateLimited()
				}
				ctx.Response().Header().Set("Retry-After", "60")
				return c.HandleError(ctx, errRateLimited,
					"Rate limit exceeded, retry later", http.StatusTooManyRequests)
			}

			return next(ctx)
		}
	}
}
