package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		Bucket: BucketConfig{
			Capacity:      100,
			RefillRate:    1000,
			MinRefillRate: 1,
			MaxRefillRate: 1000,
		},
		Backoff:      Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond},
		MaxQueueSize: 10,
		MaxRetries:   3,
	}
}

func TestExecutor_ResolvesInSubmissionOrder(t *testing.T) {
	e := NewExecutor[int](fastConfig(), nil)
	defer e.Close()

	var mu sync.Mutex
	var order []int

	futures := make([]*Future[int], 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		fut, err := e.Submit(OperationFunc[int](func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		futures = append(futures, fut)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, fut := range futures {
		got, err := fut.Wait(ctx)
		if err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		if got != i {
			t.Fatalf("op %d resolved with %d", i, got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("execution order %v is not FIFO", order)
		}
	}
}

func TestExecutor_QueueFullRejectsSynchronously(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxQueueSize = 3
	e := NewExecutor[int](cfg, nil)
	defer e.Close()

	release := make(chan struct{})
	blocker := OperationFunc[int](func(ctx context.Context) (int, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 0, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := e.Submit(blocker); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if _, err := e.Submit(blocker); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("4th submit error = %v, want ErrQueueFull", err)
	}
	if got := e.QueueLen(); got != 3 {
		t.Fatalf("queue length = %d, want 3", got)
	}
	close(release)
}

func TestExecutor_RateLimitRetriesThenExhausts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 3
	e := NewExecutor[int](cfg, nil)
	defer e.Close()

	executions := 0
	fut, err := e.Submit(OperationFunc[int](func(ctx context.Context) (int, error) {
		executions++
		return 0, &RateLimitError{Err: fmt.Errorf("throttled")}
	}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = fut.Wait(ctx)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("error = %v, want ErrMaxRetriesExceeded", err)
	}
	if !IsRateLimited(err) {
		t.Fatalf("terminal error should keep the rate-limit cause: %v", err)
	}
	if executions != 4 {
		t.Fatalf("executions = %d, want 1 attempt + 3 retries", executions)
	}
}

func TestExecutor_PermanentErrorFailsImmediately(t *testing.T) {
	e := NewExecutor[int](fastConfig(), nil)
	defer e.Close()

	boom := fmt.Errorf("invalid params")
	executions := 0
	fut, err := e.Submit(OperationFunc[int](func(ctx context.Context) (int, error) {
		executions++
		return 0, boom
	}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = fut.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want original", err)
	}
	if executions != 1 {
		t.Fatalf("executions = %d, want exactly 1 (no blind retries)", executions)
	}
}

func TestExecutor_RetrySucceedsWithinBudget(t *testing.T) {
	e := NewExecutor[string](fastConfig(), nil)
	defer e.Close()

	executions := 0
	fut, err := e.Submit(OperationFunc[string](func(ctx context.Context) (string, error) {
		executions++
		if executions < 3 {
			return "", &RateLimitError{Err: fmt.Errorf("429")}
		}
		return "ok", nil
	}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != "ok" {
		t.Fatalf("result = %q", got)
	}
	if executions != 3 {
		t.Fatalf("executions = %d, want 3", executions)
	}
}

func TestExecutor_CloseRejectsPending(t *testing.T) {
	cfg := fastConfig()
	e := NewExecutor[int](cfg, nil)

	started := make(chan struct{})
	var once sync.Once
	blocker := OperationFunc[int](func(ctx context.Context) (int, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return 0, ctx.Err()
	})

	head, err := e.Submit(blocker)
	if err != nil {
		t.Fatalf("submit head: %v", err)
	}
	queued, err := e.Submit(OperationFunc[int](func(ctx context.Context) (int, error) {
		return 42, nil
	}))
	if err != nil {
		t.Fatalf("submit queued: %v", err)
	}

	<-started
	e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := head.Wait(ctx); !errors.Is(err, ErrShutdown) && !errors.Is(err, context.Canceled) {
		t.Fatalf("head error = %v, want shutdown or cancellation", err)
	}
	if _, err := queued.Wait(ctx); !errors.Is(err, ErrShutdown) {
		t.Fatalf("queued error = %v, want ErrShutdown", err)
	}

	if _, err := e.Submit(blocker); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("submit after close = %v, want ErrExecutorClosed", err)
	}
}

func TestExecutor_BurstThenThrottle(t *testing.T) {
	cfg := Config{
		Bucket: BucketConfig{
			Capacity:      2,
			RefillRate:    10,
			MinRefillRate: 1,
			MaxRefillRate: 10,
		},
		Backoff:      Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond},
		MaxQueueSize: 10,
		MaxRetries:   0,
	}
	e := NewExecutor[int](cfg, nil)
	defer e.Close()

	start := time.Now()
	resolved := make([]time.Duration, 5)
	futures := make([]*Future[int], 5)
	for i := 0; i < 5; i++ {
		fut, err := e.Submit(OperationFunc[int](func(ctx context.Context) (int, error) {
			return 0, nil
		}))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		futures[i] = fut
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, fut := range futures {
		if _, err := fut.Wait(ctx); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		resolved[i] = time.Since(start)
	}

	// First two ride the burst; the rest wait on refill at 10 permits/s.
	if resolved[1] > 80*time.Millisecond {
		t.Fatalf("burst ops took %v, expected near-immediate", resolved[1])
	}
	if resolved[4] < 250*time.Millisecond {
		t.Fatalf("throttled ops finished in %v, expected refill pacing", resolved[4])
	}
}

func TestExecutor_ObserverHooks(t *testing.T) {
	cfg := fastConfig()
	var retries, failures int
	cfg.OnRetry = func(retry int, err error) { retries++ }
	cfg.OnFailure = func(err error) { failures++ }
	e := NewExecutor[int](cfg, nil)
	defer e.Close()

	fut, err := e.Submit(OperationFunc[int](func(ctx context.Context) (int, error) {
		return 0, &RateLimitError{Err: fmt.Errorf("throttled")}
	}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fut.Wait(ctx)

	if retries != 3 {
		t.Fatalf("retry hook fired %d times, want 3", retries)
	}
	if failures != 1 {
		t.Fatalf("failure hook fired %d times, want 1", failures)
	}
}
