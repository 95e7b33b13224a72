// Package broker provides the queue layer of the enrichment core: named
// durable FIFO queues on Redis with at-least-once delivery, plus the
// dispatcher that pulls jobs and runs the registered handlers.
package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robolog/robolog/internal/config"
)

// ErrJobNotFound is returned when a job id has no live broker record
// (never enqueued, or expired past its TTL).
var ErrJobNotFound = errors.New("broker: job not found")

// Broker is the Redis-backed queue adapter.
//
// Data model: per-job hash robolog:job:<id>, pending list
// robolog:queue:<name> (LPUSH/BRPOP, FIFO), scheduled-retry ZSET
// robolog:scheduled:<name> scored by retry time, failed set
// robolog:failed:<name>, and per-worker heartbeat keys with TTL.
type Broker struct {
	client    *redis.Client
	jobTTL    time.Duration
	resultTTL time.Duration
}

// NewBroker connects to the broker and verifies the connection.
func NewBroker(cfg config.BrokerConfig, queue config.QueueConfig) (*Broker, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr(),
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.SSL {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("broker: failed to connect to %s: %w", cfg.Addr(), err)
	}

	return &Broker{
		client:    client,
		jobTTL:    queue.JobTTL,
		resultTTL: queue.ResultTTL,
	}, nil
}

// NewBrokerWithClient wraps an existing client. Used by tests with miniredis.
func NewBrokerWithClient(client *redis.Client, queue config.QueueConfig) *Broker {
	return &Broker{
		client:    client,
		jobTTL:    queue.JobTTL,
		resultTTL: queue.ResultTTL,
	}
}

// Close releases the broker connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Enqueue places a job on the named queue and returns its id.
//
// Job ids are caller-chosen and deterministic per entity, so duplicate
// enqueues collapse: if the id already has a live record in queued or
// scheduled state, only the payload is refreshed and no second list entry
// is pushed.
func (b *Broker) Enqueue(ctx context.Context, queue, jobID, payload string) (string, error) {
	status, err := b.client.HGet(ctx, jobKey(jobID), "status").Result()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("broker: failed to check job %s: %w", jobID, err)
	}
	if err == nil && (JobStatus(status) == JobQueued || JobStatus(status) == JobScheduled) {
		if err := b.client.HSet(ctx, jobKey(jobID), "payload", payload).Err(); err != nil {
			return "", fmt.Errorf("broker: failed to refresh job %s: %w", jobID, err)
		}
		return jobID, nil
	}

	job := &Job{
		ID:         jobID,
		Queue:      queue,
		Payload:    payload,
		Status:     JobQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), job.toFields())
	pipe.Expire(ctx, jobKey(jobID), b.jobTTL+b.resultTTL)
	pipe.LPush(ctx, queueKey(queue), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("broker: failed to enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

// Dequeue blocks up to timeout for the next job across the given queues,
// in priority order of the slice. Returns (nil, nil) on timeout or when the
// popped id has no live record (expired before dispatch).
func (b *Broker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Job, error) {
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = queueKey(q)
	}

	res, err := b.client.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: failed to dequeue: %w", err)
	}

	jobID := res[1]
	job, err := b.fetch(ctx, jobID)
	if err == ErrJobNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkStarted records that a worker claimed the job.
func (b *Broker) MarkStarted(ctx context.Context, job *Job) error {
	job.Status = JobStarted
	job.Attempts++
	job.StartedAt = time.Now().UTC()
	if err := b.client.HSet(ctx, jobKey(job.ID), job.toFields()).Err(); err != nil {
		return fmt.Errorf("broker: failed to mark job %s started: %w", job.ID, err)
	}
	return nil
}

// MarkFinished records success; the record is retained until the result TTL.
func (b *Broker) MarkFinished(ctx context.Context, job *Job) error {
	job.Status = JobFinished
	job.FinishedAt = time.Now().UTC()
	job.Error = ""

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), job.toFields())
	pipe.Expire(ctx, jobKey(job.ID), b.resultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: failed to mark job %s finished: %w", job.ID, err)
	}
	return nil
}

// MarkFailed records terminal failure and adds the job to the failed set.
func (b *Broker) MarkFailed(ctx context.Context, job *Job, cause string) error {
	job.Status = JobFailed
	job.FinishedAt = time.Now().UTC()
	job.Error = cause

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), job.toFields())
	pipe.Expire(ctx, jobKey(job.ID), b.resultTTL)
	pipe.SAdd(ctx, failedKey(job.Queue), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: failed to mark job %s failed: %w", job.ID, err)
	}
	return nil
}

// ScheduleRetry parks the job on the scheduled ZSET until its retry time.
func (b *Broker) ScheduleRetry(ctx context.Context, job *Job, delay time.Duration, cause string) error {
	job.Status = JobScheduled
	job.Error = cause
	retryAt := time.Now().UTC().Add(delay)

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), job.toFields())
	pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{
		Score:  float64(retryAt.UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: failed to schedule retry for job %s: %w", job.ID, err)
	}
	return nil
}

// PromoteScheduled moves due jobs from the scheduled ZSET back onto the
// pending list. Returns how many jobs were promoted.
func (b *Broker) PromoteScheduled(ctx context.Context, queue string) (int, error) {
	now := time.Now().UTC().UnixMilli()
	ids, err := b.client.ZRangeByScore(ctx, scheduledKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: failed to read scheduled jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		// ZRem first: if two promoters race, only one wins the push.
		removed, err := b.client.ZRem(ctx, scheduledKey(queue), id).Result()
		if err != nil {
			return promoted, fmt.Errorf("broker: failed to remove scheduled job %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}

		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, jobKey(id), "status", string(JobQueued))
		pipe.LPush(ctx, queueKey(queue), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return promoted, fmt.Errorf("broker: failed to promote job %s: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

// FetchStatus returns the live record for a job id.
func (b *Broker) FetchStatus(ctx context.Context, jobID string) (*Job, error) {
	return b.fetch(ctx, jobID)
}

func (b *Broker) fetch(ctx context.Context, jobID string) (*Job, error) {
	fields, err := b.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: failed to fetch job %s: %w", jobID, err)
	}
	job := jobFromFields(fields)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// QueueStats are the per-queue counters reported by Health.
type QueueStats struct {
	Pending   int64
	Scheduled int64
	Failed    int64
}

// Health is a snapshot of queue depths and live worker count.
type Health struct {
	Queues  map[string]QueueStats
	Workers int
}

// QueueHealth reports per-queue depths and the number of workers with a
// live heartbeat.
func (b *Broker) QueueHealth(ctx context.Context, queues []string) (*Health, error) {
	health := &Health{Queues: make(map[string]QueueStats, len(queues))}

	for _, q := range queues {
		pending, err := b.client.LLen(ctx, queueKey(q)).Result()
		if err != nil {
			return nil, fmt.Errorf("broker: failed to read queue %s depth: %w", q, err)
		}
		scheduled, err := b.client.ZCard(ctx, scheduledKey(q)).Result()
		if err != nil {
			return nil, fmt.Errorf("broker: failed to read scheduled %s depth: %w", q, err)
		}
		failed, err := b.client.SCard(ctx, failedKey(q)).Result()
		if err != nil {
			return nil, fmt.Errorf("broker: failed to read failed %s depth: %w", q, err)
		}
		health.Queues[q] = QueueStats{Pending: pending, Scheduled: scheduled, Failed: failed}
	}

	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, workerKey("*"), 100).Result()
		if err != nil {
			return nil, fmt.Errorf("broker: failed to scan workers: %w", err)
		}
		health.Workers += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return health, nil
}

// Heartbeat refreshes this worker's liveness key.
func (b *Broker) Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	if err := b.client.Set(ctx, workerKey(workerID), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("broker: failed to heartbeat: %w", err)
	}
	return nil
}
