package broker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

// HandlerFunc processes one job. The context carries the watchdog timeout;
// a handler that overruns it is abandoned and the job marked failed.
type HandlerFunc func(ctx context.Context, job *Job) error

// RetryConfig bounds the broker-level redelivery of failed jobs.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first retry delay
	MaxDelay    time.Duration // retry delay cap
	Jitter      float64       // fraction of the delay randomized
}

// DefaultRetryConfig matches the worker defaults: 4 attempts, delays
// 2s, 4s, 8s (doubling, ±20% jitter, capped at 60s).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      0.2,
	}
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// WorkerID identifies this process in heartbeats. Required.
	WorkerID string

	// Queues to consume, in priority order. Defaults to all queues.
	Queues []string

	// JobTimeout is the per-job watchdog. Defaults to 600s.
	JobTimeout time.Duration

	// Retry bounds broker-level redelivery.
	Retry RetryConfig

	// Retryable classifies handler errors; nil means nothing is
	// retryable. Wire the worker's error classifier here.
	Retryable func(error) bool

	// HeartbeatInterval defaults to 15s; the liveness key expires after
	// three missed beats.
	HeartbeatInterval time.Duration

	// PromoteInterval is how often due scheduled jobs are moved back to
	// the pending list. Defaults to 1s.
	PromoteInterval time.Duration
}

// Dispatcher pulls jobs from the broker and runs registered handlers,
// one job at a time. Parallelism comes from running multiple worker
// processes, not from concurrency inside a dispatcher.
type Dispatcher struct {
	broker   *Broker
	cfg      DispatcherConfig
	handlers map[string]HandlerFunc
}

// NewDispatcher creates a dispatcher. Handlers map queue names to their
// processing functions.
func NewDispatcher(broker *Broker, cfg DispatcherConfig, handlers map[string]HandlerFunc) *Dispatcher {
	if len(cfg.Queues) == 0 {
		cfg.Queues = Queues
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = 600 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.PromoteInterval == 0 {
		cfg.PromoteInterval = time.Second
	}
	return &Dispatcher{broker: broker, cfg: cfg, handlers: handlers}
}

// Run consumes jobs until ctx is cancelled. The current job is always
// finished before returning; only the wait for the next job is interrupted.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Printf("Dispatcher: worker %s consuming queues %v", d.cfg.WorkerID, d.cfg.Queues)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		d.promoteLoop(ctx)
	}()

	// Rotate the queue priority each iteration so no queue starves.
	queues := append([]string(nil), d.cfg.Queues...)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Dispatcher: worker %s shutting down", d.cfg.WorkerID)
			wg.Wait()
			return nil
		default:
		}

		job, err := d.broker.Dequeue(ctx, queues, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			log.Printf("Dispatcher: dequeue error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(queues) > 1 {
			queues = append(queues[1:], queues[0])
		}
		if job == nil {
			continue
		}

		d.process(job)
	}
}

// process runs one job under the watchdog timeout. The handler context is
// detached from the run context so shutdown never interrupts a job
// mid-transaction.
func (d *Dispatcher) process(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
	defer cancel()

	if err := d.broker.MarkStarted(ctx, job); err != nil {
		log.Printf("Dispatcher: %v", err)
		return
	}

	log.Printf("Dispatcher: job %s started (queue %s, attempt %d)", job.ID, job.Queue, job.Attempts)

	var err error
	handler, ok := d.handlers[job.Queue]
	if !ok {
		err = fmt.Errorf("no handler registered for queue %s", job.Queue)
	} else {
		err = handler(ctx, job)
	}

	// Outcome bookkeeping runs on its own budget: a handler that consumed
	// the whole watchdog must still get its result recorded, or the job
	// would sit in started state until its TTL.
	bctx, bcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bcancel()

	if err == nil {
		if merr := d.broker.MarkFinished(bctx, job); merr != nil {
			log.Printf("Dispatcher: %v", merr)
		} else {
			log.Printf("Dispatcher: job %s finished", job.ID)
		}
		return
	}

	retryable := ok && d.cfg.Retryable != nil && d.cfg.Retryable(err)
	d.finalize(bctx, job, err, retryable)
}

// finalize either schedules a retry or marks the job failed.
func (d *Dispatcher) finalize(ctx context.Context, job *Job, err error, retryable bool) {
	if retryable && job.Attempts < d.cfg.Retry.MaxAttempts {
		delay := d.retryDelay(job.Attempts)
		log.Printf("Dispatcher: job %s failed (attempt %d/%d), retrying in %v: %v",
			job.ID, job.Attempts, d.cfg.Retry.MaxAttempts, delay.Round(time.Millisecond), err)
		if serr := d.broker.ScheduleRetry(ctx, job, delay, err.Error()); serr != nil {
			log.Printf("Dispatcher: %v", serr)
		}
		return
	}

	log.Printf("Dispatcher: job %s failed terminally after %d attempts: %v", job.ID, job.Attempts, err)
	if merr := d.broker.MarkFailed(ctx, job, err.Error()); merr != nil {
		log.Printf("Dispatcher: %v", merr)
	}
}

// retryDelay is base * 2^(attempt-1), jittered, capped.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.cfg.Retry.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.Retry.MaxDelay {
			delay = d.cfg.Retry.MaxDelay
			break
		}
	}
	if jitter := d.cfg.Retry.Jitter; jitter > 0 {
		spread := float64(delay) * jitter
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func (d *Dispatcher) heartbeatLoop(ctx context.Context) {
	ttl := 3 * d.cfg.HeartbeatInterval
	beat := func() {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.broker.Heartbeat(hctx, d.cfg.WorkerID, ttl); err != nil {
			log.Printf("Dispatcher: %v", err)
		}
	}
	beat()

	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

func (d *Dispatcher) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range d.cfg.Queues {
				pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if _, err := d.broker.PromoteScheduled(pctx, q); err != nil {
					log.Printf("Dispatcher: %v", err)
				}
				cancel()
			}
		}
	}
}
