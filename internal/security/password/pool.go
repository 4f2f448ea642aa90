package password

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/notarydesk/authcore/internal/observability/metrics"
)

// Pool bounds the number of concurrent key derivations so a burst of logins
// cannot monopolise the CPU.
type Pool struct {
	hasher *Hasher
	sem    *semaphore.Weighted
}

// NewPool wraps hasher with at most workers concurrent derivations. A
// non-positive workers value means runtime.NumCPU().
func NewPool(hasher *Hasher, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
}

// Hash hashes plaintext once a worker slot is free.
func (p *Pool) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	start := time.Now()
	record := p.hasher.Hash(plaintext)
	metrics.ObservePasswordHash("hash", time.Since(start))
	return record, nil
}

// Verify checks plaintext against stored once a worker slot is free. The
// error is non-nil only when ctx ends before a slot is acquired.
func (p *Pool) Verify(ctx context.Context, plaintext, stored string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	ok := p.hasher.Verify(plaintext, stored)
	metrics.ObservePasswordHash("verify", time.Since(start))
	return ok, nil
}

// acquire takes a worker slot. A context that is already done never gets
// one, even when slots are free.
func (p *Pool) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for hash worker: %w", err)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for hash worker: %w", err)
	}
	return nil
}
