// Package executor drives queue.QueueItem batches against the platform
// API, applying the resilience package's retry/rate-limit/concurrency
// policies around each request: a priority-ordered, concurrency-bounded
// worker pool in which each item's operations run serially, in order.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"dynamics-transfer/internal/queue"
	"dynamics-transfer/internal/resilience"
)

// Transport sends one HTTP request and reports enough of the response to
// classify it. Decoupling the executor from a concrete HTTP client mirrors
// resolver.Fetcher: internal/platform's real OData client implements this
// later, and tests exercise the executor against a fake.
type Transport interface {
	Do(ctx context.Context, op queue.Operation, headers map[string]string) (status int, body []byte, respHeaders http.Header, err error)
}

// OperationResult records the terminal outcome of a single operation.
type OperationResult struct {
	Op       queue.Operation
	Success  bool
	Body     []byte
	Err      error
	Attempts int
}

// ItemResult aggregates the per-operation results of one queue item. The
// item stops at the first failed operation, so Results holds only the
// operations actually attempted.
type ItemResult struct {
	Item    queue.QueueItem
	Results []OperationResult
	Success bool
}

// Config bundles the three resilience policies plus bypass headers that
// govern every request the executor sends.
type Config struct {
	Retry       resilience.RetryConfig
	RateLimiter *resilience.RateLimiter
	Bypass      resilience.BypassConfig

	// MaxQueueItems bounds concurrently-running queue items (workers).
	MaxQueueItems int
	// MaxConcurrentRequests bounds in-flight HTTP requests across all workers.
	MaxConcurrentRequests int
}

// Executor runs queue items against a Transport, honoring Config's
// resilience policies and the ascending-priority ordering contract.
type Executor struct {
	cfg       Config
	transport Transport
	itemGate  *resilience.Gate
	reqGate   *resilience.Gate
	cancelled atomic.Bool
}

// New constructs an Executor. A nil RateLimiter is treated as disabled.
func New(cfg Config, transport Transport) *Executor {
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = resilience.NewRateLimiter(resilience.RateLimitConfig{Enabled: false})
	}
	return &Executor{
		cfg:       cfg,
		transport: transport,
		itemGate:  resilience.NewGate(cfg.MaxQueueItems, true),
		reqGate:   resilience.NewGate(cfg.MaxConcurrentRequests, true),
	}
}

// Cancel requests cooperative shutdown: in-flight requests finish, no new
// ones start, and workers that have not yet dequeued an item stop
// dequeuing.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

func (e *Executor) isCancelled() bool {
	return e.cancelled.Load()
}

// Run executes all items, respecting ascending priority order across items
// (ties broken FIFO) and serial, in-order execution of operations within
// each item. Items run concurrently up to MaxQueueItems; results are
// returned in the same order as the sorted input, not completion order.
func (e *Executor) Run(ctx context.Context, items []queue.QueueItem) []ItemResult {
	ordered := make([]queue.QueueItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	results := make([]ItemResult, len(ordered))
	var wg sync.WaitGroup
	for i, item := range ordered {
		i, item := i, item
		if e.isCancelled() {
			results[i] = ItemResult{Item: item}
			continue
		}
		if err := e.itemGate.Acquire(ctx); err != nil {
			results[i] = ItemResult{Item: item}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.itemGate.Release()
			results[i] = e.runItem(ctx, item)
		}()
	}
	wg.Wait()
	return results
}

// runItem executes one queue item's operations serially, in list order,
// stopping at the first failure.
func (e *Executor) runItem(ctx context.Context, item queue.QueueItem) ItemResult {
	res := ItemResult{Item: item, Success: true}
	for _, op := range item.Operations {
		if e.isCancelled() {
			res.Success = false
			break
		}
		opResult := e.runOperation(ctx, op)
		res.Results = append(res.Results, opResult)
		if !opResult.Success {
			res.Success = false
			break
		}
	}
	return res
}

// responseKind classifies an HTTP response: 2xx succeeds, 429 and 5xx are
// retryable, any other 4xx fails outright.
type responseKind int

const (
	kindSuccess responseKind = iota
	kindRetryable
	kindNonRetryable
)

func classify(status int) responseKind {
	switch {
	case status >= 200 && status < 300:
		return kindSuccess
	case status == http.StatusTooManyRequests || status >= 500:
		return kindRetryable
	default:
		return kindNonRetryable
	}
}

// runOperation sends one request, retrying retryable failures per
// Config.Retry, honoring a Retry-After response header when present.
func (e *Executor) runOperation(ctx context.Context, op queue.Operation) OperationResult {
	headers := e.cfg.Bypass.Headers()

	var lastErr error
	attempt := 1
	for {
		if e.isCancelled() {
			return OperationResult{Op: op, Success: false, Err: fmt.Errorf("cancelled"), Attempts: attempt - 1}
		}
		if err := e.reqGate.Acquire(ctx); err != nil {
			return OperationResult{Op: op, Success: false, Err: err, Attempts: attempt - 1}
		}
		if err := e.cfg.RateLimiter.Wait(ctx); err != nil {
			e.reqGate.Release()
			return OperationResult{Op: op, Success: false, Err: err, Attempts: attempt - 1}
		}

		status, body, respHeaders, err := e.transport.Do(ctx, op, headers)
		e.reqGate.Release()

		if err != nil {
			lastErr = err
			if !e.cfg.Retry.ShouldRetry(attempt) {
				return OperationResult{Op: op, Success: false, Err: lastErr, Attempts: attempt}
			}
			if waitErr := e.sleepRetry(ctx, attempt, 0); waitErr != nil {
				return OperationResult{Op: op, Success: false, Err: waitErr, Attempts: attempt}
			}
			attempt++
			continue
		}

		switch classify(status) {
		case kindSuccess:
			return OperationResult{Op: op, Success: true, Body: body, Attempts: attempt}
		case kindNonRetryable:
			return OperationResult{Op: op, Success: false, Err: fmt.Errorf("non-retryable response: status %d", status), Attempts: attempt}
		case kindRetryable:
			lastErr = fmt.Errorf("retryable response: status %d", status)
			if !e.cfg.Retry.ShouldRetry(attempt) {
				return OperationResult{Op: op, Success: false, Err: lastErr, Attempts: attempt}
			}
			retryAfter := parseRetryAfter(respHeaders)
			if waitErr := e.sleepRetry(ctx, attempt, retryAfter); waitErr != nil {
				return OperationResult{Op: op, Success: false, Err: waitErr, Attempts: attempt}
			}
			attempt++
		}
	}
}

func (e *Executor) sleepRetry(ctx context.Context, attempt int, retryAfter time.Duration) error {
	delay := e.cfg.Retry.NextDelay(attempt, retryAfter)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
