package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newWorkerQueue(t *testing.T, opts QueueOptions) *Queue {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueue(rdb, "", "work", opts)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPoolProcessesJobs(t *testing.T) {
	q := newWorkerQueue(t, QueueOptions{})

	var processed atomic.Int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		var payload map[string]string
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		processed.Add(1)
		return nil
	}, PoolConfig{Concurrency: 2, PollInterval: 10 * time.Millisecond}, discardLogger())

	pool.Start()
	defer pool.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(ctx, map[string]string{"n": "x"}, PriorityNormal); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return processed.Load() == 5 })
	waitFor(t, 2*time.Second, func() bool {
		n, err := q.ProcessingCount(ctx)
		return err == nil && n == 0
	})
}

func TestPoolStartRequeuesStrandedJobs(t *testing.T) {
	q := newWorkerQueue(t, QueueOptions{})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, map[string]string{"n": "x"}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// Claim without acking to simulate a worker killed mid-handler.
	if job, err := q.Dequeue(ctx, 100*time.Millisecond); err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}

	var processed atomic.Int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		processed.Add(1)
		return nil
	}, PoolConfig{Concurrency: 1, PollInterval: 10 * time.Millisecond}, discardLogger())

	pool.Start()
	defer pool.Close()

	waitFor(t, 2*time.Second, func() bool { return processed.Load() == 1 })
	waitFor(t, 2*time.Second, func() bool {
		n, err := q.ProcessingCount(ctx)
		return err == nil && n == 0
	})
}

func TestPoolRetriesThenSucceeds(t *testing.T) {
	q := newWorkerQueue(t, QueueOptions{
		MaxAttempts: 3,
		Backoff:     Backoff{Initial: 10 * time.Millisecond},
	})

	var attempts atomic.Int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return nil
	}, PoolConfig{Concurrency: 1, PollInterval: 10 * time.Millisecond}, discardLogger())

	pool.Start()
	defer pool.Close()

	if _, err := q.Enqueue(context.Background(), map[string]string{}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() == 2 })

	dead, err := q.DeadCount(context.Background())
	if err != nil {
		t.Fatalf("DeadCount failed: %v", err)
	}
	if dead != 0 {
		t.Fatalf("recovered job must not be dead-lettered, got %d", dead)
	}
}

func TestPoolDeadLettersAfterBudget(t *testing.T) {
	q := newWorkerQueue(t, QueueOptions{
		MaxAttempts: 2,
		Backoff:     Backoff{Initial: 10 * time.Millisecond},
	})

	var attempts atomic.Int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("permanent failure")
	}, PoolConfig{Concurrency: 1, PollInterval: 10 * time.Millisecond}, discardLogger())

	pool.Start()
	defer pool.Close()

	if _, err := q.Enqueue(context.Background(), map[string]string{}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		dead, err := q.DeadCount(context.Background())
		return err == nil && dead == 1
	})
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
}

func TestPoolRecoversFromHandlerPanic(t *testing.T) {
	q := newWorkerQueue(t, QueueOptions{
		MaxAttempts: 2,
		Backoff:     Backoff{Initial: 10 * time.Millisecond},
	})

	var attempts atomic.Int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		if attempts.Add(1) == 1 {
			panic("handler blew up")
		}
		return nil
	}, PoolConfig{Concurrency: 1, PollInterval: 10 * time.Millisecond}, discardLogger())

	pool.Start()
	defer pool.Close()

	if _, err := q.Enqueue(context.Background(), map[string]string{}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() == 2 })
}

func TestPoolCloseStopsWorkers(t *testing.T) {
	q := newWorkerQueue(t, QueueOptions{})

	var processed atomic.Int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		processed.Add(1)
		return nil
	}, PoolConfig{Concurrency: 2, PollInterval: 10 * time.Millisecond}, discardLogger())

	pool.Start()
	pool.Close()

	if _, err := q.Enqueue(context.Background(), map[string]string{}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if processed.Load() != 0 {
		t.Fatal("closed pool must not process jobs")
	}

	// Close twice is safe.
	pool.Close()
}
