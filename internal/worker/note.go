package worker

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
	"github.com/robolog/robolog/pkg/types"
)

// HandleNote processes one note_enrichment job: enrich the note, then run
// the two derivation stages (task extraction, moment extraction). The
// derivation stages are non-fatal; only a failed enrichment fails the note.
func (w *Workers) HandleNote(ctx context.Context, job *broker.Job) error {
	id, err := payloadID(job.Payload, "note_id")
	if err != nil {
		return err
	}

	note, claimed, err := w.store.ClaimNote(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("Worker: note %d no longer exists, skipping job %s", id, job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Worker: note %d already processing or completed, skipping job %s", id, job.ID)
		return nil
	}

	if strings.TrimSpace(note.Content) == "" {
		// Guarded at creation, but a direct DB write could slip through.
		if ferr := w.store.FailNote(ctx, id); ferr != nil {
			log.Printf("Worker: %v", ferr)
		}
		return &llm.Error{Kind: llm.KindValidation, Op: "note_enrichment",
			Err: errors.New("note has empty content")}
	}

	// Stage 1: enrich. A failure here fails the whole job.
	result, err := w.port.ProcessText(ctx, note.Content, llm.ContextNoteEnrichment)
	if err != nil {
		log.Printf("Worker: note %d enrichment failed: %v", id, err)
		if ferr := w.store.FailNote(ctx, id); ferr != nil && !errors.Is(ferr, storage.ErrNotFound) {
			log.Printf("Worker: %v", ferr)
		}
		return err
	}

	now := time.Now().UTC()

	// Stage 2: extract tasks. Non-fatal; rows are buffered, not persisted.
	tasks, err := w.buildTasks(ctx, note, now)
	if err != nil {
		log.Printf("Worker: note %d task extraction failed (non-fatal): %v", id, err)
		tasks = nil
	}

	// Stage 3: extract moments. Non-fatal; skipped when the user tracks
	// no activities.
	moments, err := w.buildMoments(ctx, note, now)
	if err != nil {
		log.Printf("Worker: note %d moment extraction failed (non-fatal): %v", id, err)
		moments = nil
	}

	// The derived rows commit with the parent's COMPLETED transition, so
	// a failed completion leaves no orphaned children behind.
	derived := &storage.DerivedRows{Tasks: tasks, Moments: moments}
	if err := w.store.CompleteNote(ctx, id, result, now, derived); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("Worker: note %d deleted mid-processing, dropping result", id)
			return nil
		}
		return err
	}

	// Task jobs enqueue only once the parent commit succeeded.
	for _, task := range tasks {
		w.enq.EnqueueTask(ctx, task.ID)
	}

	log.Printf("Worker: note %d enriched (title %q, %d tokens, %d tasks, %d moments)",
		id, result.Title(), result.TokensUsed, len(tasks), len(moments))
	return nil
}

// buildTasks turns extraction candidates into PENDING task rows for the
// completion transaction.
func (w *Workers) buildTasks(ctx context.Context, note *types.Note, now time.Time) ([]*types.Task, error) {
	candidates, err := w.port.ExtractTasks(ctx, note.Content, now)
	if err != nil {
		return nil, err
	}

	tasks := make([]*types.Task, 0, len(candidates))
	for _, c := range candidates {
		tasks = append(tasks, &types.Task{
			UserID:   note.UserID,
			Content:  c.Content,
			Status:   c.Status,
			Priority: c.Priority,
			DueDate:  c.DueDate,
			NoteID:   &note.ID,
		})
	}
	return tasks, nil
}

// buildMoments asks the LLM for activity occurrences and validates each
// against the named activity's schema, keeping only the valid ones.
func (w *Workers) buildMoments(ctx context.Context, note *types.Note, now time.Time) ([]*types.Moment, error) {
	activities, err := w.store.ListActivitiesByUser(ctx, note.UserID)
	if err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return nil, nil
	}

	byName := make(map[string]*types.Activity, len(activities))
	for _, a := range activities {
		byName[strings.ToLower(a.Name)] = a
	}

	extracted, err := w.port.ExtractMoments(ctx, note.Content, activities, now)
	if err != nil {
		return nil, err
	}

	var moments []*types.Moment
	for _, m := range extracted {
		activity, ok := byName[strings.ToLower(m.ActivityName)]
		if !ok {
			log.Printf("Worker: note %d moment names unknown activity %q, skipping", note.ID, m.ActivityName)
			continue
		}
		if err := validateMomentData(activity.ActivitySchema, m.Data); err != nil {
			log.Printf("Worker: note %d moment for %q fails schema validation, skipping: %v",
				note.ID, activity.Name, err)
			continue
		}

		timestamp := now
		if m.Timestamp != nil {
			timestamp = m.Timestamp.UTC()
		}
		moments = append(moments, &types.Moment{
			ID:         uuid.NewString(),
			ActivityID: activity.ID,
			UserID:     note.UserID,
			NoteID:     note.ID,
			Data:       m.Data,
			Timestamp:  timestamp,
		})
	}
	return moments, nil
}
