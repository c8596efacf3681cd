package cache

import (
	"context"
	"time"
)

// RateLimiter implements a fixed-window counter over Redis: the first
// request in a window sets the key's expiry, every request after that just
// increments it.
type RateLimiter struct {
	cache *Cache
}

// NewRateLimiter wires a rate limiter on top of an existing Redis cache.
func NewRateLimiter(cache *Cache) *RateLimiter {
	return &RateLimiter{cache: cache}
}

// Allow reports whether one more request for key fits under limit within
// window. window resets from the first request that opens the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := rl.cache.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := rl.cache.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}
