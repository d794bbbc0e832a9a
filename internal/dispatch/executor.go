// Package dispatch provides a rate-limited, retrying request dispatcher for
// remote RPC endpoints. A single Executor owns an adaptive token bucket and a
// bounded FIFO queue; queued operations are drained one at a time so that a
// single rate-limited identity is never hit concurrently.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

const (
	// minPermitWait bounds how quickly the drain loop re-checks the bucket.
	minPermitWait = 10 * time.Millisecond
	// maxPermitWait bounds how long a single wait lasts; the refill rate may
	// have decayed while waiting, so the loop re-computes after each interval.
	maxPermitWait = time.Second
)

// Operation is one unit of remote work. Execute is called from the drain
// loop; the context is the executor's lifetime context and is cancelled on
// Close.
type Operation[T any] interface {
	Execute(ctx context.Context) (T, error)
}

// OperationFunc adapts a plain function to the Operation interface.
type OperationFunc[T any] func(ctx context.Context) (T, error)

func (f OperationFunc[T]) Execute(ctx context.Context) (T, error) { return f(ctx) }

// Future is the pending result of a submitted operation. It settles exactly
// once: resolved with a value, or rejected with an error.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) settle(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the operation settles or ctx is done. Abandoning the wait
// does not cancel the operation; it still runs to resolution.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Config tunes an Executor.
type Config struct {
	Bucket  BucketConfig
	Backoff Backoff

	// MaxQueueSize bounds pending operations; submits beyond it fail with
	// ErrQueueFull.
	MaxQueueSize int

	// MaxRetries is how many times a rate-limited operation is re-executed
	// after its first attempt before failing with ErrMaxRetriesExceeded.
	MaxRetries int

	// IsRetryable classifies errors as rate-limit-class. Nil uses
	// IsRateLimited.
	IsRetryable func(error) bool

	// OnRetry, when set, is invoked before each backoff sleep with the
	// upcoming retry number and the error that triggered it.
	OnRetry func(retry int, err error)

	// OnFailure, when set, is invoked when an operation settles with an
	// error.
	OnFailure func(err error)
}

// DefaultConfig returns the tuning used for public RPC endpoints.
func DefaultConfig() Config {
	return Config{
		Bucket:       DefaultBucketConfig(),
		Backoff:      DefaultBackoff(),
		MaxQueueSize: 100,
		MaxRetries:   3,
	}
}

type item[T any] struct {
	op  Operation[T]
	fut *Future[T]
}

// Executor serializes operations against one rate-limited endpoint. Only one
// drain loop is ever active; submissions while the loop runs are appended and
// reached in FIFO order. A slow or retrying head item delays everything
// behind it (head-of-line blocking is accepted for fairness).
type Executor[T any] struct {
	bucket      *TokenBucket
	backoff     Backoff
	maxQueue    int
	maxRetries  int
	isRetryable func(error) bool
	onRetry     func(retry int, err error)
	onFailure   func(err error)
	log         *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	queue    []*item[T]
	draining bool
	closed   bool
}

// NewExecutor builds an executor from cfg. A nil log uses a default logger.
func NewExecutor[T any](cfg Config, log *logger.Logger) *Executor[T] {
	if log == nil {
		log = logger.NewDefault("dispatch")
	}
	if cfg.MaxQueueSize < 1 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	classify := cfg.IsRetryable
	if classify == nil {
		classify = IsRateLimited
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor[T]{
		bucket:      NewTokenBucket(cfg.Bucket, nil),
		backoff:     cfg.Backoff,
		maxQueue:    cfg.MaxQueueSize,
		maxRetries:  cfg.MaxRetries,
		isRetryable: classify,
		onRetry:     cfg.OnRetry,
		onFailure:   cfg.OnFailure,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit enqueues op for dispatch. It fails synchronously with ErrQueueFull
// when the queue is at capacity and ErrExecutorClosed after Close. Every
// accepted operation eventually settles its future; nothing is dropped.
func (e *Executor[T]) Submit(op Operation[T]) (*Future[T], error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrExecutorClosed
	}
	if len(e.queue) >= e.maxQueue {
		e.mu.Unlock()
		e.log.Warn("dispatch queue full", "max_queue_size", e.maxQueue)
		return nil, ErrQueueFull
	}
	it := &item[T]{op: op, fut: newFuture[T]()}
	e.queue = append(e.queue, it)
	start := !e.draining
	if start {
		e.draining = true
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if start {
		go e.drain()
	}
	return it.fut, nil
}

// Do submits op and waits for its result. ctx bounds only the wait, not the
// operation itself.
func (e *Executor[T]) Do(ctx context.Context, op Operation[T]) (T, error) {
	fut, err := e.Submit(op)
	if err != nil {
		var zero T
		return zero, err
	}
	return fut.Wait(ctx)
}

// QueueLen returns the number of pending operations, including the one the
// drain loop is working on.
func (e *Executor[T]) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Tokens returns the bucket's currently available permits.
func (e *Executor[T]) Tokens() float64 { return e.bucket.Tokens() }

// RefillRate returns the bucket's current refill rate.
func (e *Executor[T]) RefillRate() float64 { return e.bucket.Rate() }

// Close stops the executor and rejects every pending operation with
// ErrShutdown. It blocks until the drain loop exits. Close is idempotent.
func (e *Executor[T]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()

	e.cancel()
	for _, it := range pending {
		it.fut.settle(*new(T), ErrShutdown)
	}
	e.wg.Wait()
}

// drain is the single-flight loop consuming the queue head by head.
func (e *Executor[T]) drain() {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		if e.closed || len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		it := e.queue[0]
		e.mu.Unlock()

		if !e.waitPermit() {
			return
		}
		e.dispatch(it)
	}
}

// waitPermit blocks until a bucket permit is acquired or the executor closes.
// The wait is computed from the bucket's deficit instead of a fixed poll, and
// re-checked each interval since the refill rate can change mid-wait.
func (e *Executor[T]) waitPermit() bool {
	for !e.bucket.AcquirePermit() {
		wait := e.bucket.waitForPermit()
		if wait < minPermitWait {
			wait = minPermitWait
		}
		if wait > maxPermitWait {
			wait = maxPermitWait
		}
		if !e.sleep(wait) {
			return false
		}
	}
	return true
}

// dispatch runs the head item to settlement, retrying rate-limit failures
// with backoff. The item stays at the queue head until it settles.
func (e *Executor[T]) dispatch(it *item[T]) {
	retries := 0
	for {
		val, err := it.op.Execute(e.ctx)
		if err == nil {
			e.bucket.HandleSuccess()
			it.fut.settle(val, nil)
			e.pop()
			return
		}
		if !e.isRetryable(err) {
			e.fail(it, err)
			return
		}

		e.bucket.HandleFailure()
		if retries >= e.maxRetries {
			e.log.Warn("retries exhausted", "retries", retries, "error", err)
			e.fail(it, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err))
			return
		}

		delay := e.backoff.Delay(retries)
		retries++
		if e.onRetry != nil {
			e.onRetry(retries, err)
		}
		e.log.Debug("rate limited, backing off",
			"retry", retries, "delay", delay, "refill_rate", e.bucket.Rate())
		if !e.sleep(delay) {
			return
		}
	}
}

// fail reports the failure to the observer before settling so waiters never
// observe a settled future ahead of its metrics.
func (e *Executor[T]) fail(it *item[T], err error) {
	if e.onFailure != nil {
		e.onFailure(err)
	}
	it.fut.settle(*new(T), err)
	e.pop()
}

func (e *Executor[T]) pop() {
	e.mu.Lock()
	if len(e.queue) > 0 {
		e.queue = e.queue[1:]
	}
	e.mu.Unlock()
}

// sleep waits for d or until Close cancels the executor context.
func (e *Executor[T]) sleep(d time.Duration) bool {
	if d <= 0 {
		return e.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}
