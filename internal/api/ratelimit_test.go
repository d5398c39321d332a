// ratelimit_test.go: per-credential limiter pool behavior.
package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLimiterPool_BurstExhaustion(t *testing.T) {
	t.Parallel()

	pool := newLimiterPool(60, 2)

	assert.True(t, pool.allow("key-a"))
	assert.True(t, pool.allow("key-a"))
	assert.False(t, pool.allow("key-a"), "the burst budget is spent")
}

func TestLimiterPool_CredentialsAreIsolated(t *testing.T) {
	t.Parallel()

	pool := newLimiterPool(60, 1)

	assert.True(t, pool.allow("key-a"))
	assert.False(t, pool.allow("key-a"))
	assert.True(t, pool.allow("key-b"), "one noisy credential must not starve another")
}

func TestLimiterPool_IdleEviction(t *testing.T) {
	t.Parallel()

	pool := newLimiterPool(60, 1)
	assert.True(t, pool.allow("stale"))
	assert.Equal(t, 1, pool.size())

	// Age the entry past the TTL and force the next call to sweep.
	pool.mu.Lock()
	pool.entries["stale"].lastSeen = time.Now().Add(-limiterIdleTTL - time.Minute)
	pool.lastSweep = time.Now().Add(-limiterSweepInterval - time.Second)
	pool.mu.Unlock()

	assert.True(t, pool.allow("fresh"))
	assert.Equal(t, 1, pool.size(), "the stale entry is gone, only fresh remains")
}

func TestLimiterPool_Defaults(t *testing.T) {
	t.Parallel()

	pool := newLimiterPool(0, 0)
	assert.Equal(t, rate.Limit(0.5), pool.perSecond, "30 per minute")
	assert.Equal(t, 10, pool.burst)
}
