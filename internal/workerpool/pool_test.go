package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := New(2)

	var running, peak atomic.Int64
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do() unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent jobs, saw %d", peak.Load())
	}
	if pool.InUse() != 0 {
		t.Errorf("Expected no slots in use after completion, got %d", pool.InUse())
	}
}

func TestPool_CancelledWhileQueued(t *testing.T) {
	pool := New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = pool.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := pool.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
	if called {
		t.Error("Job should not run when its context expires in the queue")
	}
	if pool.InUse() != 1 {
		t.Errorf("Expected 1 slot in use, got %d", pool.InUse())
	}

	close(release)
}

func TestPool_PropagatesJobError(t *testing.T) {
	pool := New(0)
	errJob := errors.New("job failed")

	if err := pool.Do(context.Background(), func(context.Context) error { return errJob }); !errors.Is(err, errJob) {
		t.Errorf("Do() error = %v, want %v", err, errJob)
	}
	if pool.Size() != DefaultSize {
		t.Errorf("Expected default size %d, got %d", DefaultSize, pool.Size())
	}
}
