package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authcore_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	authDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_authorization_decisions_total",
		Help: "Middleware outcomes by terminal state and reason",
	}, []string{"outcome", "reason"})

	passwordHashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authcore_password_hash_duration_seconds",
		Help:    "Duration of password key derivations",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	bootstrapAccounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_bootstrap_accounts_total",
		Help: "Well-known accounts processed at startup by action",
	}, []string{"action"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_rate_limited_total",
		Help: "Requests rejected by a rate limiter",
	}, []string{"limiter"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_cache_evictions_total",
		Help: "Expired cache entries removed by the janitor",
	}, []string{"cache"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt ("success", "invalid", "error", "throttled").
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveAuthDecision counts a middleware terminal state.
func ObserveAuthDecision(outcome, reason string) {
	authDecisions.WithLabelValues(outcome, reason).Inc()
}

// ObservePasswordHash records the duration of a hash or verify derivation.
func ObservePasswordHash(op string, duration time.Duration) {
	passwordHashDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveBootstrap counts one bootstrap account outcome.
func ObserveBootstrap(action string) {
	bootstrapAccounts.WithLabelValues(action).Inc()
}

// ObserveRateLimited counts a request rejected by the named limiter.
func ObserveRateLimited(limiter string) {
	rateLimited.WithLabelValues(limiter).Inc()
}

// ObserveCacheEvictions adds n pruned entries for the named cache.
func ObserveCacheEvictions(cache string, n int) {
	cacheEvictions.WithLabelValues(cache).Add(float64(n))
}
