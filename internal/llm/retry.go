package llm

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// RetryPolicy configures the in-process retry loop around LLM calls.
type RetryPolicy struct {
	MaxRetries int           // retry attempts after the first call
	BaseDelay  time.Duration // first backoff delay
	MaxDelay   time.Duration // backoff cap
	Jitter     float64       // fraction of the delay randomized, e.g. 0.2
}

// DefaultRetryPolicy matches the worker configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     0.2,
	}
}

// WithRetry runs fn, retrying on retryable errors (rate-limited, timeout,
// transient) with exponential backoff and jitter. Non-retryable errors and
// exhausted budgets return the last error unchanged.
func WithRetry(ctx context.Context, clock Clock, policy RetryPolicy, op string, fn func() error) error {
	if clock == nil {
		clock = RealClock()
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= policy.MaxRetries {
			return err
		}

		delay := policy.backoff(attempt)
		log.Printf("LLM: %s attempt %d/%d failed (%s), retrying in %v: %v",
			op, attempt+1, policy.MaxRetries+1, KindOf(err), delay.Round(time.Millisecond), err)

		if serr := clock.Sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

// backoff computes the delay before retry number attempt+1:
// base * 2^attempt, jittered by ±Jitter, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}
