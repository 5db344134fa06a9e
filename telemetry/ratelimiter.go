package telemetry

import (
	"sync"
	"time"
)

// RateLimiter is a minimal token-bucket-of-one limiter: it allows at
// most one action per interval. StructuredLogger uses it to cap
// error-level log volume during a cascading failure.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewRateLimiter builds a RateLimiter that permits one Allow() every
// interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether an action may proceed now, recording this
// instant as the last permitted one if so.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}

// Reset clears the limiter's last-allowed timestamp, re-permitting the
// next Allow() call immediately.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = time.Time{}
}
