package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HandlerFunc performs the work of one job. A nil return completes the job;
// an error (or panic) schedules a retry until the attempt budget runs out.
type HandlerFunc func(ctx context.Context, job *Job) error

// PoolConfig bounds a worker pool.
type PoolConfig struct {
	// Concurrency is the number of worker goroutines. Zero means 4.
	Concurrency int
	// JobTimeout bounds a single handler invocation. Zero means 30 seconds.
	JobTimeout time.Duration
	// PollInterval is the blocking-pop window per dequeue. Zero means 1 second.
	PollInterval time.Duration
}

// Pool consumes one queue with a fixed number of workers. Worker concurrency
// is independent of request-handling concurrency; nothing on the request
// path ever blocks on the pool.
type Pool struct {
	queue     *Queue
	handler   HandlerFunc
	cfg       PoolConfig
	logger    *slog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPool wires a handler to a queue. Call Start to begin consuming.
func NewPool(queue *Queue, handler HandlerFunc, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start requeues jobs stranded by a previous crash, then launches the worker
// goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		if n, err := p.queue.Recover(context.Background()); err != nil {
			p.logger.Error("queue recovery failed",
				"queue", p.queue.Name(),
				"error", err,
			)
		} else if n > 0 {
			p.logger.Warn("requeued stranded jobs",
				"queue", p.queue.Name(),
				"count", n,
			)
		}
		for i := 0; i < p.cfg.Concurrency; i++ {
			p.wg.Add(1)
			go p.run()
		}
	})
}

// Close stops the workers and waits for in-flight jobs to finish. Jobs
// already enqueued stay in Redis for the next Start.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		default:
		}

		job, err := p.queue.Dequeue(context.Background(), p.cfg.PollInterval)
		if err != nil {
			p.logger.Error("queue dequeue failed",
				"queue", p.queue.Name(),
				"error", err,
			)
			select {
			case <-p.done:
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}
		if job == nil {
			continue
		}

		if p.process(job) {
			if err := p.queue.Ack(context.Background(), job); err != nil {
				p.logger.Error("job ack failed",
					"queue", p.queue.Name(),
					"job", job.ID,
					"error", err,
				)
			}
		}
	}
}

// process runs the job and settles its outcome. It reports whether the job
// reached a durable next state (done, retry scheduled, or dead-lettered) and
// can be acked; on false the claim is left for Recover to requeue.
func (p *Pool) process(job *Job) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.JobTimeout)
	defer cancel()

	err := p.safeHandle(ctx, job)
	if err == nil {
		return true
	}

	job.Attempt++
	if job.Attempt >= job.MaxAttempts {
		if dlErr := p.queue.DeadLetter(ctx, job); dlErr != nil {
			p.logger.Error("dead-letter append failed",
				"queue", p.queue.Name(),
				"job", job.ID,
				"error", dlErr,
			)
			return false
		}
		p.logger.Error("job dead-lettered",
			"queue", p.queue.Name(),
			"job", job.ID,
			"attempts", job.Attempt,
			"error", err,
		)
		return true
	}

	delay := p.queue.Options().Backoff.Delay(job.Attempt)
	if retryErr := p.queue.Retry(ctx, job, delay); retryErr != nil {
		p.logger.Error("job retry scheduling failed",
			"queue", p.queue.Name(),
			"job", job.ID,
			"error", retryErr,
		)
		return false
	}
	p.logger.Warn("job failed, retry scheduled",
		"queue", p.queue.Name(),
		"job", job.ID,
		"attempt", job.Attempt,
		"delay", delay,
		"error", err,
	)
	return true
}

func (p *Pool) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return p.handler(ctx, job)
}
