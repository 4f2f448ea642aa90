package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/notarydesk/authcore/internal/observability/metrics"
)

// Pruner drops expired entries and reports how many it removed.
type Pruner interface {
	Prune() int
}

// CacheJanitor periodically prunes a cache so entries that are never read
// again still get released.
type CacheJanitor struct {
	name     string
	target   Pruner
	logger   *slog.Logger
	interval time.Duration
}

// NewCacheJanitor creates a janitor for target.
func NewCacheJanitor(name string, target Pruner, logger *slog.Logger, interval time.Duration) *CacheJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheJanitor{
		name:     name,
		target:   target,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the prune loop until ctx is cancelled.
func (j *CacheJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("cache janitor started",
		slog.String("cache", j.name),
		slog.Duration("interval", j.interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cache janitor stopped", slog.String("cache", j.name))
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce performs a single prune pass and returns the number of evictions.
func (j *CacheJanitor) RunOnce() int {
	removed := j.target.Prune()
	if removed > 0 {
		metrics.ObserveCacheEvictions(j.name, removed)
		j.logger.Debug("pruned expired cache entries",
			slog.String("cache", j.name),
			slog.Int("removed", removed),
		)
	}
	return removed
}
