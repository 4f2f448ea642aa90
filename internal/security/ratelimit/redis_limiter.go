package ratelimit

import (
	"context"
	"time"
)

// WindowCounter is the slice of the Redis client the distributed limiter
// uses.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisLimiter is a fixed-window limiter shared by every replica.
type RedisLimiter struct {
	counter WindowCounter
	prefix  string
	maxReqs int
	window  time.Duration
}

func NewRedisLimiter(counter WindowCounter, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{counter: counter, prefix: prefix, maxReqs: maxRequests, window: window}
}

// Allow increments the shared counter for key. Errors are returned so the
// caller can fall back to local limiting.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" || l.maxReqs <= 0 {
		return true, nil
	}
	n, err := l.counter.IncrWindow(ctx, "ratelimit:"+l.prefix+":"+key, l.window)
	if err != nil {
		return false, err
	}
	return n <= int64(l.maxReqs), nil
}
