package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared through Redis, so every replica
// sees the same counts.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
	clock  func() time.Time
}

func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{client: client, prefix: "quiz:ratelimit:", clock: time.Now}
}

// Allow counts one hit for key and reports whether it is within limit per period.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (bool, error) {
	window := r.clock().UnixNano() / int64(period)
	k := fmt.Sprintf("%s%s:%d", r.prefix, key, window)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}
