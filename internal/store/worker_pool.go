package store

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds how many store calls run concurrently so a burst of
// requests can't starve the database connection pool. Every store operation
// is dispatched through Do so the calling goroutine (never the event loop
// itself, in implementations that have one) is the only one blocked on I/O.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool bounded to n concurrent store calls.
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn on a worker slot, blocking the caller (not any other goroutine)
// until a slot is free or ctx is done.
func (p *WorkerPool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Close is a no-op placeholder for symmetry with Store.Close; semaphore.Weighted
// needs no teardown, but future pool implementations (e.g. a real goroutine
// pool) would drain here.
func (p *WorkerPool) Close() {}
