package llm

import (
	"context"
	"sync"
	"time"
)

// rateWindow is the span of the sliding windows.
const rateWindow = time.Minute

type tokenEntry struct {
	at     time.Time
	tokens int
}

// RateLimiter enforces per-process requests-per-minute and tokens-per-minute
// budgets with sliding 60-second windows.
//
// WaitForCapacity blocks until admitting one more request and the estimated
// tokens would keep both rolling totals within budget; it never admits
// optimistically before a sleep. RecordUsage must be called after every
// call that reached the provider, with the actual token count on success or
// the estimate when the provider did not report usage.
//
// State is process-local: with N worker processes the effective provider
// rate is up to N times the per-process budget.
type RateLimiter struct {
	mu          sync.Mutex
	clock       Clock
	maxRequests int
	maxTokens   int

	requests []time.Time
	tokens   []tokenEntry
	tokenSum int
}

// NewRateLimiter creates a limiter with the given per-minute budgets.
// Non-positive budgets disable the corresponding check.
func NewRateLimiter(maxRequestsPerMinute, maxTokensPerMinute int, clock Clock) *RateLimiter {
	if clock == nil {
		clock = RealClock()
	}
	return &RateLimiter{
		clock:       clock,
		maxRequests: maxRequestsPerMinute,
		maxTokens:   maxTokensPerMinute,
	}
}

// WaitForCapacity blocks until the limiter can admit one more request with
// estimatedTokens of budget, or ctx is cancelled. The admit decision is
// re-taken after every sleep, so the rolling totals never overshoot.
func (rl *RateLimiter) WaitForCapacity(ctx context.Context, estimatedTokens int) error {
	for {
		rl.mu.Lock()
		now := rl.clock.Now()
		rl.prune(now)

		if rl.hasCapacity(estimatedTokens) {
			rl.mu.Unlock()
			return nil
		}

		wait := rl.nextExpiry(now)
		rl.mu.Unlock()

		if err := rl.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordUsage appends a request timestamp and a token entry to the windows.
func (rl *RateLimiter) RecordUsage(actualTokens int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.prune(now)
	rl.requests = append(rl.requests, now)
	rl.tokens = append(rl.tokens, tokenEntry{at: now, tokens: actualTokens})
	rl.tokenSum += actualTokens
}

// Usage returns the current rolling totals. Intended for logging and tests.
func (rl *RateLimiter) Usage() (requests, tokens int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune(rl.clock.Now())
	return len(rl.requests), rl.tokenSum
}

// hasCapacity is called with rl.mu held and the windows pruned.
func (rl *RateLimiter) hasCapacity(estimatedTokens int) bool {
	if rl.maxRequests > 0 && len(rl.requests)+1 > rl.maxRequests {
		return false
	}
	if rl.maxTokens > 0 && rl.tokenSum+estimatedTokens > rl.maxTokens {
		// A single oversized call can never fit alongside others; admit
		// it alone rather than blocking forever.
		return estimatedTokens > rl.maxTokens && rl.tokenSum == 0
	}
	return true
}

// prune drops window entries older than 60 seconds. Called with rl.mu held.
func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)

	i := 0
	for i < len(rl.requests) && !rl.requests[i].After(cutoff) {
		i++
	}
	rl.requests = rl.requests[i:]

	j := 0
	for j < len(rl.tokens) && !rl.tokens[j].at.After(cutoff) {
		rl.tokenSum -= rl.tokens[j].tokens
		j++
	}
	rl.tokens = rl.tokens[j:]
}

// nextExpiry returns how long until the oldest window entry ages out.
// Called with rl.mu held after pruning; both windows share timestamps, so
// the oldest entry across them decides the sleep.
func (rl *RateLimiter) nextExpiry(now time.Time) time.Duration {
	var oldest time.Time
	if len(rl.requests) > 0 {
		oldest = rl.requests[0]
	}
	if len(rl.tokens) > 0 && (oldest.IsZero() || rl.tokens[0].at.Before(oldest)) {
		oldest = rl.tokens[0].at
	}
	if oldest.IsZero() {
		// Nothing in the windows yet the budget is still breached
		// (oversized estimate); poll briefly.
		return 100 * time.Millisecond
	}

	wait := oldest.Add(rateWindow).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}
