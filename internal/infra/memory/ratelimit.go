package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter kept in process memory.
type RateLimiter struct {
	clock func() time.Time

	mu      sync.Mutex
	windows map[string]window
}

type window struct {
	count     int
	expiresAt time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{clock: time.Now, windows: make(map[string]window)}
}

// Allow counts one hit for key and reports whether it is within limit per period.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (bool, error) {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = window{expiresAt: now.Add(period)}
		r.evictLocked(now)
	}
	w.count++
	r.windows[key] = w
	return w.count <= limit, nil
}

func (r *RateLimiter) evictLocked(now time.Time) {
	for k, w := range r.windows {
		if !now.Before(w.expiresAt) {
			delete(r.windows, k)
		}
	}
}
