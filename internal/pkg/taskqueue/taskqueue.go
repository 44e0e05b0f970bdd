// Package taskqueue is a Redis-backed durable job queue with at-least-once
// delivery. Ready jobs live in a sorted set scored by their ready-at time;
// claimed jobs move to an active sorted set scored by their visibility-lease
// deadline. A job whose lease expires before completion is redelivered, so
// handlers must tolerate repeated execution.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shareloom/core/internal/pkg/metrics"
	redisc "github.com/shareloom/core/internal/pkg/redis"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Job is a unit of background work stored in Redis.
type Job struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	State         JobState        `json:"state"`
	AttemptsMade  int             `json:"attempts_made"`
	MaxAttempts   int             `json:"max_attempts"`
	BackoffBaseMS int64           `json:"backoff_base_ms"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Options tunes a single enqueue.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration // base of the exponential schedule
	Delay       time.Duration // initial delay before first delivery
}

const (
	keyPrefix     = "sl:job:"
	keyReadyBase  = "sl:jobs:ready:" // one ready set per job type
	keyTypes      = "sl:jobs:types"
	keyActive     = "sl:jobs:active"
	keyCompleted  = "sl:jobs:stat:completed"
	keyFailed     = "sl:jobs:stat:failed"
	terminalTTL   = 24 * time.Hour // terminal jobs linger for status polling
	defaultLease  = 2 * time.Minute
	defaultMaxTry = 3
	defaultBack   = 5 * time.Second
	maxBackoff    = 10 * time.Minute
)

// ErrNotFound is returned when a job id is unknown or already pruned.
var ErrNotFound = errors.New("taskqueue: job not found")

// claimScript atomically moves the oldest ready job (score <= now) to the
// active set with a lease deadline, so a job is delivered to at most one
// worker while its lease holds.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[2], ids[1])
return ids[1]
`)

// Queue manages the Redis-backed job queue.
type Queue struct {
	rc    *redisc.Client
	lease time.Duration
}

func New(rc *redisc.Client) *Queue {
	return &Queue{rc: rc, lease: defaultLease}
}

// SetLease overrides the visibility lease (tests use short leases).
func (q *Queue) SetLease(d time.Duration) {
	if d > 0 {
		q.lease = d
	}
}

func (q *Queue) jobKey(id string) string { return keyPrefix + id }
func readyKey(jobType string) string     { return keyReadyBase + jobType }

// Enqueue stores a new job and makes it visible after opts.Delay.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload interface{}, opts Options) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: marshal payload: %w", err)
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxTry
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBack
	}

	now := time.Now()
	job := &Job{
		ID:            uuid.New().String(),
		Type:          jobType,
		Payload:       raw,
		State:         StateQueued,
		MaxAttempts:   opts.MaxAttempts,
		BackoffBaseMS: opts.Backoff.Milliseconds(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	readyAt := now.Add(opts.Delay)
	pipe := q.rc.Raw().TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), data, 0)
	pipe.SAdd(ctx, keyTypes, jobType)
	pipe.ZAdd(ctx, readyKey(jobType), redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("taskqueue: enqueue: %w", err)
	}

	metrics.JobsEnqueued.WithLabelValues(jobType).Inc()
	return job, nil
}

// Claim delivers the oldest ready job of the given type, or (nil, nil)
// when nothing is due. The claimed job is leased for the visibility window
// and its attempt counter is advanced.
func (q *Queue) Claim(ctx context.Context, jobType string) (*Job, error) {
	now := time.Now()
	res, err := claimScript.Run(ctx, q.rc.Raw(),
		[]string{readyKey(jobType), keyActive},
		now.UnixMilli(), now.Add(q.lease).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskqueue: claim: %w", err)
	}

	id, _ := res.(string)
	job, err := q.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// body pruned under a stale index entry; drop the reference
			q.rc.Raw().ZRem(ctx, keyActive, id)
			return nil, nil
		}
		return nil, err
	}

	job.State = StateActive
	job.AttemptsMade++
	job.UpdatedAt = now
	if err := q.store(ctx, job, 0); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete marks a job done and records its result.
func (q *Queue) Complete(ctx context.Context, id string, result interface{}) error {
	job, err := q.load(ctx, id)
	if err != nil {
		return err
	}

	job.State = StateCompleted
	job.FailureReason = ""
	job.UpdatedAt = time.Now()
	if result != nil {
		job.Result, _ = json.Marshal(result)
	}

	if err := q.store(ctx, job, terminalTTL); err != nil {
		return err
	}
	pipe := q.rc.Raw().TxPipeline()
	pipe.ZRem(ctx, keyActive, id)
	pipe.Incr(ctx, keyCompleted)
	_, err = pipe.Exec(ctx)
	metrics.JobsCompleted.WithLabelValues(job.Type).Inc()
	return err
}

// Fail reports a failed attempt. Terminal failures and exhausted attempts
// finish the job; anything else is requeued after exponential backoff.
func (q *Queue) Fail(ctx context.Context, id, reason string, terminal bool) error {
	job, err := q.load(ctx, id)
	if err != nil {
		return err
	}

	job.FailureReason = reason
	job.UpdatedAt = time.Now()

	if terminal || job.AttemptsMade >= job.MaxAttempts {
		job.State = StateFailed
		if err := q.store(ctx, job, terminalTTL); err != nil {
			return err
		}
		pipe := q.rc.Raw().TxPipeline()
		pipe.ZRem(ctx, keyActive, id)
		pipe.Incr(ctx, keyFailed)
		_, err = pipe.Exec(ctx)
		metrics.JobsFailed.WithLabelValues(job.Type).Inc()
		return err
	}

	job.State = StateQueued
	if err := q.store(ctx, job, 0); err != nil {
		return err
	}
	readyAt := job.UpdatedAt.Add(NextBackoff(time.Duration(job.BackoffBaseMS)*time.Millisecond, job.AttemptsMade))
	pipe := q.rc.Raw().TxPipeline()
	pipe.ZRem(ctx, keyActive, id)
	pipe.ZAdd(ctx, readyKey(job.Type), redis.Z{Score: float64(readyAt.UnixMilli()), Member: id})
	_, err = pipe.Exec(ctx)
	metrics.JobsRetried.WithLabelValues(job.Type).Inc()
	return err
}

// NextBackoff computes the delay before redelivery after the given number
// of completed attempts: base * 2^(attempts-1), capped.
func NextBackoff(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultBack
	}
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Status returns a job by id; found is false for unknown or pruned jobs.
func (q *Queue) Status(ctx context.Context, id string) (*Job, bool, error) {
	job, err := q.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Stats summarizes queue depth and throughput.
type Stats struct {
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// QueueStats returns current counts across all job types.
func (q *Queue) QueueStats(ctx context.Context) (Stats, error) {
	rdb := q.rc.Raw()

	types, err := rdb.SMembers(ctx, keyTypes).Result()
	if err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("taskqueue: stats: %w", err)
	}

	var stats Stats
	for _, t := range types {
		n, err := rdb.ZCard(ctx, readyKey(t)).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("taskqueue: stats: %w", err)
		}
		stats.Queued += n
	}

	if stats.Active, err = rdb.ZCard(ctx, keyActive).Result(); err != nil {
		return Stats{}, fmt.Errorf("taskqueue: stats: %w", err)
	}
	stats.Completed, _ = rdb.Get(ctx, keyCompleted).Int64()
	stats.Failed, _ = rdb.Get(ctx, keyFailed).Int64()
	return stats, nil
}

// ReapExpiredLeases moves jobs whose visibility lease lapsed back to the
// ready set for redelivery. Returns the number of jobs requeued.
func (q *Queue) ReapExpiredLeases(ctx context.Context) (int, error) {
	now := time.Now()
	ids, err := q.rc.Raw().ZRangeByScore(ctx, keyActive, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("taskqueue: reap: %w", err)
	}

	reaped := 0
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err != nil {
			q.rc.Raw().ZRem(ctx, keyActive, id)
			continue
		}
		job.State = StateQueued
		job.UpdatedAt = now
		if err := q.store(ctx, job, 0); err != nil {
			continue
		}
		pipe := q.rc.Raw().TxPipeline()
		pipe.ZRem(ctx, keyActive, id)
		pipe.ZAdd(ctx, readyKey(job.Type), redis.Z{Score: float64(now.UnixMilli()), Member: id})
		if _, err := pipe.Exec(ctx); err == nil {
			reaped++
		}
	}
	return reaped, nil
}

func (q *Queue) load(ctx context.Context, id string) (*Job, error) {
	data, found, err := q.rc.Get(ctx, q.jobKey(id))
	if err != nil {
		return nil, fmt.Errorf("taskqueue: load %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("taskqueue: decode %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) store(ctx context.Context, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rc.Set(ctx, q.jobKey(job.ID), data, ttl)
}
