// Package workerpool bounds how many blocking jobs (subprocesses, API calls)
// run at once. Callers beyond capacity queue.
package workerpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize matches the default max-concurrent-downloads setting.
const DefaultSize = 3

type Pool struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
}

func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Do waits for a free slot, runs fn and releases the slot. If ctx is done
// while waiting, fn is not run and ctx.Err() is returned.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.inUse.Add(1)
	defer func() {
		p.inUse.Add(-1)
		p.sem.Release(1)
	}()

	return fn(ctx)
}

// InUse reports how many slots are currently taken.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Size reports the pool capacity.
func (p *Pool) Size() int {
	return int(p.size)
}
