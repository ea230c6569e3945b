// Package workerpool runs a dispatch's per-task worker entries across a
// fixed number of goroutines, collecting a per-task return-code vector.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"
)

// Pool is a lazily-sized pool of worker slots. A dispatch assigns one task
// per slot; the pool does no re-partitioning within a single run.
type Pool struct {
	mu sync.Mutex
	n  int
}

// New constructs a pool. n = 0 selects the host's logical core count via
// gopsutil rather than bare runtime.NumCPU(), matching the gopsutil-backed
// hardware introspection used elsewhere in this stack.
func New(n int) (*Pool, error) {
	p := &Pool{}
	if _, err := p.Resize(n); err != nil {
		return nil, err
	}
	return p, nil
}

// Resize changes the pool's slot count. It must not be called while a Run
// is in flight for this pool; the pool itself does not guard against
// that.
func (p *Pool) Resize(n int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n == 0 {
		logical, err := cpu.Counts(true)
		if err != nil {
			return 0, fmt.Errorf("workerpool: detecting logical core count: %w", err)
		}
		if logical < 1 {
			logical = 1
		}
		n = logical
	}
	if n < 1 {
		return 0, fmt.Errorf("workerpool: pool size must be >= 1, got %d", n)
	}

	p.n = n
	return p.n, nil
}

// Size returns the pool's current slot count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

// Task is one worker's entry point: threads is the total task count for
// this dispatch, idx is this worker's index in [0, threads).
type Task func(threads, idx int32) int32

// Run executes task once per slot, blocking until every invocation
// completes. The returned slice has exactly Size() entries, each worker's
// own return code, written only to its own slot. A non-nil error means at
// least one task returned a context error; per-task return codes are
// still the authoritative per-task status the caller inspects.
func (p *Pool) Run(ctx context.Context, task Task) ([]int32, error) {
	n := p.Size()
	returns := make([]int32, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			returns[idx] = task(int32(n), int32(idx))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return returns, fmt.Errorf("workerpool: run: %w", err)
	}
	return returns, nil
}

// Shutdown is a no-op: this pool holds no persistent OS threads between
// runs, so there is nothing to drain or join.
func (p *Pool) Shutdown() {}
