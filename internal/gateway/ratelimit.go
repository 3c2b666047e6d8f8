package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-key limiter is kept.
const limiterIdleTTL = 10 * time.Minute

type keyedLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key (session ID or remote address).
type RateLimiter struct {
	rpm   int
	burst int

	mu        sync.Mutex
	limiters  map[string]*keyedLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per key.
// rpm <= 0 disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*keyedLimiter),
		now:      time.Now,
	}
}

// Enabled reports whether the limiter does anything.
func (rl *RateLimiter) Enabled() bool { return rl != nil && rl.rpm > 0 }

// Allow consumes one token for key and reports whether the request may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, l := range rl.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}

	l, ok := rl.limiters[key]
	if !ok {
		l = &keyedLimiter{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.rpm)), rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = now
	return l.lim.AllowN(now, 1)
}

// size is the number of tracked keys.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
