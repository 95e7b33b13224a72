package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/config"
	"github.com/robolog/robolog/internal/enqueue"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
	"github.com/robolog/robolog/internal/storage/sqlite"
	"github.com/robolog/robolog/pkg/types"
)

type testEnv struct {
	workers *Workers
	store   *sqlite.Store
	port    *llm.TestPort
	broker  *broker.Broker
	enq     *enqueue.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.NewStore(t.TempDir() + "/robolog.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.NewBrokerWithClient(client, config.QueueConfig{
		JobTTL:    time.Hour,
		ResultTTL: time.Hour,
	})
	t.Cleanup(func() { b.Close() })

	port := llm.NewTestPort()
	enq := enqueue.NewService(b)
	return &testEnv{
		workers: New(store, port, enq),
		store:   store,
		port:    port,
		broker:  b,
		enq:     enq,
	}
}

func (e *testEnv) createNote(t *testing.T, content string) *types.Note {
	t.Helper()
	note := &types.Note{UserID: "user-1", Content: content}
	require.NoError(t, e.store.CreateNote(context.Background(), note))
	return note
}

func (e *testEnv) createActivity(t *testing.T, name, schema string) *types.Activity {
	t.Helper()
	activity := &types.Activity{UserID: "user-1", Name: name, ActivitySchema: []byte(schema)}
	require.NoError(t, e.store.CreateActivity(context.Background(), activity))
	return activity
}

func noteJob(id int64) *broker.Job {
	return &broker.Job{
		ID:      enqueue.NoteJobID(id),
		Queue:   broker.QueueNoteEnrichment,
		Payload: enqueuePayload("note_id", id),
	}
}

func taskJob(id int64) *broker.Job {
	return &broker.Job{
		ID:      enqueue.TaskJobID(id),
		Queue:   broker.QueueTaskEnrichment,
		Payload: enqueuePayload("task_id", id),
	}
}

func activityJob(id int64) *broker.Job {
	return &broker.Job{
		ID:      enqueue.ActivityJobID(id),
		Queue:   broker.QueueActivitySchema,
		Payload: enqueuePayload("activity_id", id),
	}
}

func enqueuePayload(key string, id int64) string {
	raw, _ := json.Marshal(map[string]int64{key: id})
	return string(raw)
}

func TestHandleNote_FullPipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createActivity(t, "Running", `{"type":"object","properties":{"distance_km":{"type":"number"}}}`)
	note := env.createNote(t, "Went running this morning.\nTODO: buy new shoes tomorrow\nTODO: stretch more")

	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	// Note completed with the enrichment written atomically.
	loaded, err := env.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loaded.ProcessingStatus)
	require.NotNil(t, loaded.EnrichmentData)
	assert.Contains(t, loaded.EnrichmentData.Content, "WENT RUNNING")
	require.NotNil(t, loaded.ProcessedAt)

	// Extracted tasks created as PENDING, linked to the note, each enqueued.
	tasks, err := env.store.ListTasksByNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, types.StatusPending, task.ProcessingStatus)
		require.NotNil(t, task.NoteID)
		assert.Equal(t, note.ID, *task.NoteID)

		job, err := env.broker.FetchStatus(ctx, enqueue.TaskJobID(task.ID))
		require.NoError(t, err)
		assert.Equal(t, broker.JobQueued, job.Status)
	}
	assert.Equal(t, "buy new shoes tomorrow", tasks[0].Content)
	assert.NotNil(t, tasks[0].DueDate, "tomorrow resolves to a due date")
	assert.Nil(t, tasks[1].DueDate)

	// The running mention became a moment.
	moments, err := env.store.ListMomentsByNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, moments, 1)
	assert.Equal(t, note.ID, moments[0].NoteID)
	assert.Equal(t, "user-1", moments[0].UserID)
}

func TestHandleNote_AlreadyClaimedSkips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	note := env.createNote(t, "contested")

	_, ok, err := env.store.ClaimNote(ctx, note.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))
	assert.Zero(t, env.port.Calls("process_text"), "no LLM call for a claimed note")
}

func TestHandleNote_DeletedEntityIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.workers.HandleNote(context.Background(), noteJob(9999)))
	assert.Zero(t, env.port.Calls("process_text"))
}

func TestHandleNote_EnrichmentFailureFailsNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	note := env.createNote(t, "doomed")

	env.port.Err = &llm.Error{Kind: llm.KindTransient, Op: "process_text", Err: errors.New("503")}

	err := env.workers.HandleNote(ctx, noteJob(note.ID))
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	loaded, err := env.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, loaded.ProcessingStatus)
	assert.Nil(t, loaded.EnrichmentData)
}

func TestHandleNote_FailedNoteReprocessable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	note := env.createNote(t, "flaky then fine")

	env.port.Err = &llm.Error{Kind: llm.KindTimeout, Op: "process_text", Err: errors.New("timeout")}
	require.Error(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	// Broker redelivery retries the same job; the FAILED note is claimable.
	env.port.Err = nil
	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	loaded, err := env.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loaded.ProcessingStatus)
}

func TestHandleNote_NoActivitiesSkipsMomentExtraction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	note := env.createNote(t, "just a plain note")

	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))
	assert.Zero(t, env.port.Calls("extract_moments"))
}

func TestHandleNote_InvalidMomentDataRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createActivity(t, "Running", `{"type":"object","properties":{"distance_km":{"type":"number"}}}`)
	env.port.MomentData = map[string]json.RawMessage{
		"Running": json.RawMessage(`{"distance_km":"five"}`),
	}
	note := env.createNote(t, "went running again")

	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	// The invalid moment is dropped; the note still completes.
	moments, err := env.store.ListMomentsByNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, moments)

	loaded, err := env.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loaded.ProcessingStatus)
}

func TestHandleNote_UnknownActivityNameSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createActivity(t, "Running", `{"type":"object"}`)
	ts := time.Now().UTC()
	env.port.Moments = []types.ExtractedMoment{
		{ActivityName: "Swimming", Data: json.RawMessage(`{}`), Timestamp: &ts},
	}
	note := env.createNote(t, "went swimming, allegedly")

	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	moments, err := env.store.ListMomentsByNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, moments)
}

// brokenExtractionPort fails task extraction while enrichment succeeds.
type brokenExtractionPort struct {
	*llm.TestPort
}

func (p *brokenExtractionPort) ExtractTasks(ctx context.Context, noteText string, now time.Time) ([]types.TaskCandidate, error) {
	return nil, &llm.Error{Kind: llm.KindTransient, Op: "extract_tasks", Err: errors.New("503")}
}

func TestHandleNote_DerivationFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.workers.port = &brokenExtractionPort{TestPort: env.port}
	note := env.createNote(t, "TODO: something")

	// Task extraction fails, but the note still completes with its enrichment.
	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	loaded, err := env.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loaded.ProcessingStatus)

	tasks, err := env.store.ListTasksByNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// vanishingNotePort deletes the note mid-enrichment, simulating a user
// delete racing the worker.
type vanishingNotePort struct {
	*llm.TestPort
	store  *sqlite.Store
	noteID int64
}

func (p *vanishingNotePort) ProcessText(ctx context.Context, text string, contextType llm.ContextType) (*types.EnrichmentResult, error) {
	if err := p.store.DeleteNote(ctx, p.noteID); err != nil {
		return nil, err
	}
	return p.TestPort.ProcessText(ctx, text, contextType)
}

func TestHandleNote_CompletionFailureEnqueuesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	note := env.createNote(t, "TODO: buy new shoes")
	env.workers.port = &vanishingNotePort{TestPort: env.port, store: env.store, noteID: note.ID}

	// The note disappears before completion; the dropped result must leave
	// neither task rows nor task jobs behind.
	require.NoError(t, env.workers.HandleNote(ctx, noteJob(note.ID)))

	tasks, err := env.store.ListTasksByNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	health, err := env.broker.QueueHealth(ctx, broker.Queues)
	require.NoError(t, err)
	assert.EqualValues(t, 0, health.Queues[broker.QueueTaskEnrichment].Pending)
}

func TestHandleNote_EmptyContentFailsWithoutLLM(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// CreateNote rejects empty content, so seed a whitespace-only row the
	// way a direct DB write could.
	now := time.Now().UTC()
	res, err := env.store.GetDB().ExecContext(ctx, `
		INSERT INTO notes (user_id, content, processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		"user-1", "   ", types.StatusPending, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	err = env.workers.HandleNote(ctx, noteJob(id))
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, env.port.Calls("process_text"))

	loaded, err := env.store.GetNote(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, loaded.ProcessingStatus)
}

func TestHandleNote_StorageFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	note := env.createNote(t, "caught mid-outage")
	require.NoError(t, env.store.Close())

	err := env.workers.HandleNote(context.Background(), noteJob(note.ID))
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "a later delivery may outlive the outage")
}

func TestIsRetryable_Classification(t *testing.T) {
	// Unclassified errors are treated as persistence failures.
	assert.True(t, IsRetryable(errors.New("database is locked (SQLITE_BUSY)")))
	assert.True(t, IsRetryable(fmt.Errorf("sqlite: failed to claim note: %w", errors.New("driver: bad connection"))))

	// Entity-state sentinels and malformed payloads are terminal.
	assert.False(t, IsRetryable(fmt.Errorf("claim: %w", storage.ErrNotFound)))
	assert.False(t, IsRetryable(storage.ErrInvalidTransition))
	assert.False(t, IsRetryable(storage.ErrConflict))
	assert.False(t, IsRetryable(storage.ErrEmptyContent))
	assert.False(t, IsRetryable(errBadPayload))

	// LLM errors keep their own classification.
	assert.True(t, IsRetryable(&llm.Error{Kind: llm.KindTransient, Op: "process_text", Err: errors.New("503")}))
	assert.False(t, IsRetryable(&llm.Error{Kind: llm.KindPermanent, Op: "process_text", Err: errors.New("400")}))
}

func TestHandleNote_BadPayload(t *testing.T) {
	env := newTestEnv(t)
	job := &broker.Job{ID: "note_processing_x", Queue: broker.QueueNoteEnrichment, Payload: "not json"}
	assert.Error(t, env.workers.HandleNote(context.Background(), job))
}

// suggestingPort layers task suggestions onto the deterministic provider.
type suggestingPort struct {
	*llm.TestPort
	priority string
	dueDate  string
}

func (p *suggestingPort) ProcessText(ctx context.Context, text string, contextType llm.ContextType) (*types.EnrichmentResult, error) {
	result, err := p.TestPort.ProcessText(ctx, text, contextType)
	if err != nil {
		return nil, err
	}
	if p.priority != "" {
		result.Metadata[types.MetadataSuggestedPriority] = p.priority
	}
	if p.dueDate != "" {
		result.Metadata[types.MetadataSuggestedDueDate] = p.dueDate
	}
	return result, nil
}

func TestHandleTask_SuggestionsAppliedWhenUnset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.workers.port = &suggestingPort{TestPort: env.port, priority: "HIGH", dueDate: "2026-09-01"}

	task := &types.Task{UserID: "user-1", Content: "call the dentist"}
	require.NoError(t, env.store.CreateTask(ctx, task))

	require.NoError(t, env.workers.HandleTask(ctx, taskJob(task.ID)))

	loaded, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loaded.ProcessingStatus)
	require.NotNil(t, loaded.EnrichmentData)
	assert.Equal(t, types.PriorityHigh, loaded.Priority)
	require.NotNil(t, loaded.DueDate)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), loaded.DueDate.UTC())
}

func TestHandleTask_SuggestionsNeverOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.workers.port = &suggestingPort{TestPort: env.port, priority: "HIGH", dueDate: "2026-09-01"}

	userDue := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	task := &types.Task{UserID: "user-1", Content: "water plants", Priority: types.PriorityLow, DueDate: &userDue}
	require.NoError(t, env.store.CreateTask(ctx, task))

	require.NoError(t, env.workers.HandleTask(ctx, taskJob(task.ID)))

	loaded, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PriorityLow, loaded.Priority)
	require.NotNil(t, loaded.DueDate)
	assert.Equal(t, userDue, loaded.DueDate.UTC())
}

func TestHandleTask_EnrichmentFailureFailsTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &types.Task{UserID: "user-1", Content: "doomed task"}
	require.NoError(t, env.store.CreateTask(ctx, task))

	env.port.Err = &llm.Error{Kind: llm.KindRateLimited, Op: "process_text", Err: errors.New("429")}
	require.Error(t, env.workers.HandleTask(ctx, taskJob(task.ID)))

	loaded, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, loaded.ProcessingStatus)
}

func TestSuggestionsFromMetadata(t *testing.T) {
	assert.Nil(t, suggestionsFromMetadata(nil))
	assert.Nil(t, suggestionsFromMetadata(map[string]interface{}{types.MetadataTitle: "x"}))
	assert.Nil(t, suggestionsFromMetadata(map[string]interface{}{
		types.MetadataSuggestedPriority: "SOMEDAY",
		types.MetadataSuggestedDueDate:  "whenever",
	}), "unparseable suggestions are dropped")

	sugg := suggestionsFromMetadata(map[string]interface{}{
		types.MetadataSuggestedPriority: "URGENT",
		types.MetadataSuggestedDueDate:  "2026-09-15T10:00:00Z",
	})
	require.NotNil(t, sugg)
	assert.Equal(t, types.PriorityUrgent, sugg.Priority)
	require.NotNil(t, sugg.DueDate)
	assert.Equal(t, time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC), *sugg.DueDate)
}

func TestHandleActivity_WritesRender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	activity := env.createActivity(t, "Gym", `{"type":"object","properties":{"reps":{"type":"integer"},"sets":{"type":"integer"}}}`)

	require.NoError(t, env.workers.HandleActivity(ctx, activityJob(activity.ID)))

	loaded, err := env.store.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loaded.ProcessingStatus)
	require.NotNil(t, loaded.SchemaRender)
	assert.Equal(t, types.RenderForm, loaded.SchemaRender.RenderType)
	require.Len(t, loaded.SchemaRender.FieldGroups, 1)
	assert.Equal(t, []string{"reps", "sets"}, loaded.SchemaRender.FieldGroups[0].Fields)
}

func TestHandleActivity_AnalysisFailureFailsActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	activity := env.createActivity(t, "Gym", `{"type":"object"}`)
	env.port.Err = &llm.Error{Kind: llm.KindPermanent, Op: "analyze_activity_schema", Err: errors.New("400")}

	err := env.workers.HandleActivity(ctx, activityJob(activity.ID))
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	loaded, err := env.store.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, loaded.ProcessingStatus)
}

func TestRecoverPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A pending note with no broker record gets re-enqueued.
	orphan := env.createNote(t, "lost in the shuffle")

	// A pending task whose job is still queued is left alone.
	covered := &types.Task{UserID: "user-1", Content: "already queued"}
	require.NoError(t, env.store.CreateTask(ctx, covered))
	require.NotEmpty(t, env.enq.EnqueueTask(ctx, covered.ID))

	env.workers.RecoverPending(ctx)

	job, err := env.broker.FetchStatus(ctx, enqueue.NoteJobID(orphan.ID))
	require.NoError(t, err)
	assert.Equal(t, broker.JobQueued, job.Status)

	health, err := env.broker.QueueHealth(ctx, broker.Queues)
	require.NoError(t, err)
	assert.EqualValues(t, 1, health.Queues[broker.QueueTaskEnrichment].Pending, "no duplicate enqueue")
}

func TestValidateMomentData(t *testing.T) {
	schema := []byte(`{"type":"object","required":["distance_km"],"properties":{"distance_km":{"type":"number"}}}`)

	assert.NoError(t, validateMomentData(schema, json.RawMessage(`{"distance_km":5.2}`)))
	assert.Error(t, validateMomentData(schema, json.RawMessage(`{}`)), "missing required field")
	assert.Error(t, validateMomentData(schema, json.RawMessage(`{"distance_km":"five"}`)), "wrong type")
	assert.Error(t, validateMomentData([]byte(`not json`), json.RawMessage(`{}`)))
}

var _ storage.Store = (*sqlite.Store)(nil)
