package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances manually; Sleep moves time forward instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_AdmitsWithinBudget(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(5, 1000, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.WaitForCapacity(ctx, 100))
		rl.RecordUsage(100)
	}

	requests, tokens := rl.Usage()
	assert.Equal(t, 5, requests)
	assert.Equal(t, 500, tokens)
	assert.Zero(t, clock.sleeps, "no sleep needed within budget")
}

func TestRateLimiter_BlocksOnRequestBudget(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, 0, clock)
	ctx := context.Background()

	rl.RecordUsage(10)
	rl.RecordUsage(10)

	// Third request must wait for the oldest entry to age out.
	require.NoError(t, rl.WaitForCapacity(ctx, 10))
	assert.GreaterOrEqual(t, clock.slept, 59*time.Second)

	requests, _ := rl.Usage()
	assert.LessOrEqual(t, requests, 1, "window pruned after the wait")
}

func TestRateLimiter_BlocksOnTokenBudget(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(0, 1000, clock)
	ctx := context.Background()

	rl.RecordUsage(900)

	// 200 estimated tokens would overshoot 1000; the limiter must sleep
	// out the existing entry rather than admit optimistically.
	require.NoError(t, rl.WaitForCapacity(ctx, 200))
	assert.Positive(t, clock.sleeps)

	_, tokens := rl.Usage()
	assert.Zero(t, tokens)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, 0, clock)
	ctx := context.Background()

	rl.RecordUsage(10)
	clock.Advance(61 * time.Second)

	require.NoError(t, rl.WaitForCapacity(ctx, 10))
	assert.Zero(t, clock.sleeps, "expired entry frees the budget without sleeping")
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, 0, clock)

	rl.RecordUsage(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.WaitForCapacity(ctx, 10))
}

func TestRateLimiter_OversizedCallAdmittedAlone(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(0, 100, clock)
	ctx := context.Background()

	// Larger than the whole budget: admitted only when the window is empty.
	require.NoError(t, rl.WaitForCapacity(ctx, 500))

	rl.RecordUsage(500)
	require.NoError(t, rl.WaitForCapacity(ctx, 50))
	assert.Positive(t, clock.sleeps, "must wait for the oversized entry to age out")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, tokenEstimateOverhead, EstimateTokens(""))
	assert.Equal(t, tokenEstimateOverhead+1, EstimateTokens("abc"))
	assert.Equal(t, tokenEstimateOverhead+1, EstimateTokens("abcd"))
	assert.Equal(t, tokenEstimateOverhead+2, EstimateTokens("abcde"))
}
