package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robolog/robolog/internal/config"
)

func newTestBroker(t *testing.T) (*Broker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewBrokerWithClient(client, config.QueueConfig{
		JobTimeout: 600 * time.Second,
		JobTTL:     time.Hour,
		ResultTTL:  24 * time.Hour,
	})
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestEnqueueDequeue_FIFO(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	for _, id := range []string{"note_processing_1", "note_processing_2", "note_processing_3"} {
		_, err := b.Enqueue(ctx, QueueNoteEnrichment, id, `{"note_id":1}`)
		require.NoError(t, err)
	}

	for _, want := range []string{"note_processing_1", "note_processing_2", "note_processing_3"} {
		job, err := b.Dequeue(ctx, []string{QueueNoteEnrichment}, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.ID)
		assert.Equal(t, JobQueued, job.Status)
	}
}

func TestDequeue_Timeout(t *testing.T) {
	b, _ := newTestBroker(t)
	job, err := b.Dequeue(context.Background(), []string{QueueNoteEnrichment}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueue_DeterministicIDCollapses(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, QueueNoteEnrichment, "note_processing_7", `{"note_id":7}`)
	require.NoError(t, err)
	_, err = b.Enqueue(ctx, QueueNoteEnrichment, "note_processing_7", `{"note_id":7,"v":2}`)
	require.NoError(t, err)

	// One list entry, refreshed payload.
	entries, err := mr.List(queueKey(QueueNoteEnrichment))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	job, err := b.FetchStatus(ctx, "note_processing_7")
	require.NoError(t, err)
	assert.Equal(t, `{"note_id":7,"v":2}`, job.Payload)
}

func TestJobLifecycle(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, QueueTaskEnrichment, "task_processing_1", `{"task_id":1}`)
	require.NoError(t, err)

	job, err := b.Dequeue(ctx, Queues, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, b.MarkStarted(ctx, job))
	assert.Equal(t, 1, job.Attempts)

	fetched, err := b.FetchStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStarted, fetched.Status)

	require.NoError(t, b.MarkFinished(ctx, job))
	fetched, err = b.FetchStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFinished, fetched.Status)
	assert.False(t, fetched.FinishedAt.IsZero())
}

func TestMarkFailed(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, QueueActivitySchema, "activity_processing_1", `{"activity_id":1}`)
	require.NoError(t, err)
	job, err := b.Dequeue(ctx, Queues, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, b.MarkFailed(ctx, job, "provider exploded"))

	fetched, err := b.FetchStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, fetched.Status)
	assert.Equal(t, "provider exploded", fetched.Error)

	health, err := b.QueueHealth(ctx, Queues)
	require.NoError(t, err)
	assert.EqualValues(t, 1, health.Queues[QueueActivitySchema].Failed)
}

func TestScheduleRetryAndPromote(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, QueueNoteEnrichment, "note_processing_9", `{"note_id":9}`)
	require.NoError(t, err)
	job, err := b.Dequeue(ctx, Queues, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, b.ScheduleRetry(ctx, job, 0, "rate limited"))

	fetched, err := b.FetchStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobScheduled, fetched.Status)

	promoted, err := b.PromoteScheduled(ctx, QueueNoteEnrichment)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	again, err := b.Dequeue(ctx, Queues, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "note_processing_9", again.ID)
	assert.Equal(t, JobQueued, again.Status)
}

func TestPromote_LeavesFutureJobs(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, QueueNoteEnrichment, "note_processing_10", `{"note_id":10}`)
	require.NoError(t, err)
	job, err := b.Dequeue(ctx, Queues, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, b.ScheduleRetry(ctx, job, time.Hour, "later"))

	promoted, err := b.PromoteScheduled(ctx, QueueNoteEnrichment)
	require.NoError(t, err)
	assert.Zero(t, promoted)

	health, err := b.QueueHealth(ctx, Queues)
	require.NoError(t, err)
	assert.EqualValues(t, 1, health.Queues[QueueNoteEnrichment].Scheduled)
}

func TestFetchStatus_Unknown(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.FetchStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestHeartbeatFeedsWorkerCount(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Heartbeat(ctx, "worker-a", time.Minute))
	require.NoError(t, b.Heartbeat(ctx, "worker-b", time.Minute))

	health, err := b.QueueHealth(ctx, Queues)
	require.NoError(t, err)
	assert.Equal(t, 2, health.Workers)
}

func TestExpiredJobSkippedOnDequeue(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, QueueNoteEnrichment, "note_processing_11", `{"note_id":11}`)
	require.NoError(t, err)

	// The job hash expires while the id still sits on the list.
	mr.FastForward(26 * time.Hour)

	job, err := b.Dequeue(ctx, Queues, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}
