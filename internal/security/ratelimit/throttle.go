package ratelimit

import (
	"context"
	"log/slog"

	"github.com/notarydesk/authcore/internal/observability/metrics"
	"github.com/notarydesk/authcore/internal/reliability/circuitbreaker"
)

// Throttle prefers the shared Redis limiter and falls back to the local one
// while Redis is failing or its breaker is open.
type Throttle struct {
	name    string
	local   *Limiter
	remote  *RedisLimiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewThrottle builds a throttle. remote and breaker may be nil, in which
// case only local limiting applies.
func NewThrottle(name string, local *Limiter, remote *RedisLimiter, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{name: name, local: local, remote: remote, breaker: breaker, logger: logger}
}

// Allow reports whether key may proceed.
func (t *Throttle) Allow(ctx context.Context, key string) bool {
	allowed := t.decide(ctx, key)
	if !allowed {
		metrics.ObserveRateLimited(t.name)
	}
	return allowed
}

func (t *Throttle) decide(ctx context.Context, key string) bool {
	if t.remote == nil || t.breaker == nil {
		return t.local.Allow(key)
	}
	if !t.breaker.Allow() {
		return t.local.Allow(key)
	}

	allowed, err := t.remote.Allow(ctx, key)
	if err != nil {
		t.breaker.RecordFailure()
		t.logger.Warn("shared rate limiter unavailable, using local",
			slog.String("limiter", t.name),
			slog.String("error", err.Error()),
		)
		return t.local.Allow(key)
	}
	t.breaker.RecordSuccess()
	return allowed
}
