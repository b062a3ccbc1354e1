package gateway

import (
	"sync"
	"time"
)

// RateLimiter caps submissions using a sliding window.
type RateLimiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	timestamps []time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window}
}

// Allow reports whether another submission fits in the current window and
// records it if so.
func (l *RateLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Remove expired timestamps
	cutoff := now.Add(-l.window)
	valid := 0
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			l.timestamps[valid] = ts
			valid++
		}
	}
	l.timestamps = l.timestamps[:valid]

	if len(l.timestamps) >= l.max {
		return false
	}

	l.timestamps = append(l.timestamps, now)
	return true
}

// Reset clears the window (useful for testing).
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = nil
}
