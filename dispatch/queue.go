package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps queue backend failures.
var ErrRedisUnavailable = errors.New("queue redis unavailable")

// Priority orders jobs within a queue. High-priority jobs are always popped
// before normal ones.
type Priority int

const (
	// PriorityNormal is the default job priority.
	PriorityNormal Priority = 0
	// PriorityHigh jumps the queue; used for time-sensitive mail such as OTP codes.
	PriorityHigh Priority = 1
)

// Job is a unit of deferred work persisted until a worker completes it or it
// exhausts its retry budget.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    Priority        `json:"priority"`
	EnqueuedAt  int64           `json:"enqueued_at"`

	// claim is the raw list entry the job was dequeued as. Ack removes
	// exactly this entry from the processing list.
	claim string
}

// Backoff configures the retry delay policy of a queue.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Exponential doubles the delay on every further attempt when set;
	// otherwise the delay is fixed at Initial.
	Exponential bool
	// Max caps the exponential delay. Zero means 15 minutes.
	Max time.Duration
}

// Delay returns the wait before retrying a job that has failed attempt times.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = 5 * time.Second
	}
	if !b.Exponential {
		return initial
	}

	max := b.Max
	if max <= 0 {
		max = 15 * time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

// QueueOptions configures retry behavior for all jobs on one queue.
type QueueOptions struct {
	// MaxAttempts bounds executions per job, first try included. Zero means 3.
	MaxAttempts int
	// Backoff is the retry delay policy.
	Backoff Backoff
}

// promoteScript moves due delayed jobs back onto their ready list. Score is
// the unix-millisecond instant the job becomes runnable again.
const promoteScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 100)
for _, payload in ipairs(due) do
  redis.call("LPUSH", KEYS[2], payload)
  redis.call("ZREM", KEYS[1], payload)
end
return #due
`

var promoteLua = redis.NewScript(promoteScript)

// claimScript atomically moves the next ready job onto the processing list,
// preferring high priority. The job stays in Redis until it is acked, so a
// worker crash mid-handler never loses it.
const claimScript = `
local payload = redis.call("LMOVE", KEYS[1], KEYS[3], "RIGHT", "LEFT")
if not payload then
  payload = redis.call("LMOVE", KEYS[2], KEYS[3], "RIGHT", "LEFT")
end
if not payload then
  return false
end
return payload
`

var claimLua = redis.NewScript(claimScript)

// Queue is a named durable job queue on Redis lists, with a delayed set for
// retries and a dead-letter list for jobs past their attempt budget.
type Queue struct {
	redis  redis.UniversalClient
	name   string
	prefix string
	opts   QueueOptions
}

// NewQueue returns the named queue under the given key prefix.
func NewQueue(redisClient redis.UniversalClient, prefix, name string, opts QueueOptions) *Queue {
	if prefix == "" {
		prefix = "aq"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Queue{
		redis:  redisClient,
		name:   name,
		prefix: prefix,
		opts:   opts,
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) readyKey(priority Priority) string {
	if priority == PriorityHigh {
		return q.prefix + ":" + q.name + ":high"
	}
	return q.prefix + ":" + q.name + ":ready"
}

func (q *Queue) delayedKey(priority Priority) string {
	if priority == PriorityHigh {
		return q.prefix + ":" + q.name + ":delayed:high"
	}
	return q.prefix + ":" + q.name + ":delayed"
}

func (q *Queue) deadKey() string {
	return q.prefix + ":" + q.name + ":dead"
}

func (q *Queue) processingKey() string {
	return q.prefix + ":" + q.name + ":processing"
}

// Enqueue marshals payload into a new job and appends it to the queue.
func (q *Queue) Enqueue(ctx context.Context, payload any, priority Priority) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.NewString(),
		Queue:       q.name,
		Payload:     raw,
		Attempt:     0,
		MaxAttempts: q.opts.MaxAttempts,
		Priority:    priority,
		EnqueuedAt:  time.Now().UnixMilli(),
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := q.redis.LPush(ctx, q.readyKey(priority), encoded).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return job, nil
}

// Dequeue claims the next ready job, preferring high priority, polling up to
// wait. The job is moved onto a processing list rather than removed, and must
// be settled with Ack once completed, retried, or dead-lettered. Returns
// (nil, nil) when nothing is ready within the window.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}

		payload, err := claimLua.Run(
			ctx,
			q.redis,
			[]string{q.readyKey(PriorityHigh), q.readyKey(PriorityNormal), q.processingKey()},
		).Text()
		if err == nil {
			var job Job
			if uerr := json.Unmarshal([]byte(payload), &job); uerr != nil {
				// Drop the corrupt entry so it cannot wedge the queue.
				q.redis.LRem(ctx, q.processingKey(), 1, payload)
				return nil, fmt.Errorf("corrupt job payload: %w", uerr)
			}
			job.claim = payload
			return &job, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		pollWait := 25 * time.Millisecond
		if pollWait > remaining {
			pollWait = remaining
		}
		timer := time.NewTimer(pollWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil
		case <-timer.C:
		}
	}
}

// Ack removes a claimed job from the processing list. Call it only after the
// job has been completed, rescheduled with Retry, or dead-lettered; a job
// left unacked is requeued by Recover.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if job.claim == "" {
		return nil
	}
	if err := q.redis.LRem(ctx, q.processingKey(), 1, job.claim).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Recover moves jobs stranded on the processing list back onto their ready
// lists and returns how many it moved. Entries are only stranded when a
// worker dies between claim and ack; delivery is at-least-once, so a crash
// during recovery can at worst duplicate a job, never lose it.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		payload, err := q.redis.LIndex(ctx, q.processingKey(), -1).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return moved, nil
			}
			return moved, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		priority := PriorityNormal
		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err == nil {
			priority = job.Priority
		}
		if err := q.redis.LPush(ctx, q.readyKey(priority), payload).Err(); err != nil {
			return moved, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if err := q.redis.LRem(ctx, q.processingKey(), 1, payload).Err(); err != nil {
			return moved, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		moved++
	}
}

// Retry schedules the job to run again after delay.
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.redis.ZAdd(ctx, q.delayedKey(job.Priority), redis.Z{Score: due, Member: encoded}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeadLetter sets the job aside for manual inspection instead of retrying
// it further.
func (q *Queue) DeadLetter(ctx context.Context, job *Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, q.deadKey(), encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Options returns the queue's retry configuration.
func (q *Queue) Options() QueueOptions {
	return q.opts
}

// ReadyCount returns the number of jobs waiting on the ready lists.
func (q *Queue) ReadyCount(ctx context.Context) (int, error) {
	var total int64
	for _, key := range []string{q.readyKey(PriorityHigh), q.readyKey(PriorityNormal)} {
		n, err := q.redis.LLen(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += n
	}
	return int(total), nil
}

// ProcessingCount returns the number of claimed, not yet acked jobs.
func (q *Queue) ProcessingCount(ctx context.Context) (int, error) {
	n, err := q.redis.LLen(ctx, q.processingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// DeadCount returns the number of dead-lettered jobs.
func (q *Queue) DeadCount(ctx context.Context) (int, error) {
	n, err := q.redis.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

func (q *Queue) promoteDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	for _, priority := range []Priority{PriorityHigh, PriorityNormal} {
		err := promoteLua.Run(
			ctx,
			q.redis,
			[]string{q.delayedKey(priority), q.readyKey(priority)},
			now,
		).Err()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}
