package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyConfig bounds how many worker tasks (max_queue_items) and
// individual in-flight HTTP requests (max_concurrent_requests) run at once.
type ConcurrencyConfig struct {
	MaxConcurrentRequests int
	MaxQueueItems         int
	Enabled               bool
}

// Gate wraps golang.org/x/sync/semaphore as a counted concurrency permit
// pool, used independently at the queue-item level (max_queue_items
// workers) and the request level (max_concurrent_requests in-flight HTTP
// calls).
type Gate struct {
	sem     *semaphore.Weighted
	enabled bool
}

// NewGate constructs a gate with capacity n. A non-positive capacity or
// enabled=false disables gating: Acquire/Release become no-ops.
func NewGate(n int, enabled bool) *Gate {
	if n <= 0 {
		enabled = false
	}
	g := &Gate{enabled: enabled}
	if enabled {
		g.sem = semaphore.NewWeighted(int64(n))
	}
	return g
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	if !g.enabled {
		return nil
	}
	return g.sem.Acquire(ctx, 1)
}

// Release returns a permit acquired via Acquire.
func (g *Gate) Release() {
	if !g.enabled {
		return
	}
	g.sem.Release(1)
}
