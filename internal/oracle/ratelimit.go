package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter implements a simple token bucket refilled on demand.
type rateLimiter struct {
	lastRefill time.Time
	tokens     float64
	perMinute  float64
	mu         sync.Mutex
}

// newRateLimiter creates a rate limiter for the given requests per minute.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		tokens:     float64(requestsPerMinute),
		perMinute:  float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// wait blocks until a token is available or the context expires.
func (rl *rateLimiter) wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rl.tryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Minutes() * rl.perMinute
	if rl.tokens > rl.perMinute {
		rl.tokens = rl.perMinute
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}
