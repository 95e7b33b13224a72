package worker

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
	"github.com/robolog/robolog/pkg/types"
)

// HandleTask processes one task_enrichment job: enrich the task text and
// apply any suggested priority or due date whose current value is unset.
func (w *Workers) HandleTask(ctx context.Context, job *broker.Job) error {
	id, err := payloadID(job.Payload, "task_id")
	if err != nil {
		return err
	}

	task, claimed, err := w.store.ClaimTask(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("Worker: task %d no longer exists, skipping job %s", id, job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Worker: task %d already processing or completed, skipping job %s", id, job.ID)
		return nil
	}

	if strings.TrimSpace(task.Content) == "" {
		if ferr := w.store.FailTask(ctx, id); ferr != nil {
			log.Printf("Worker: %v", ferr)
		}
		return &llm.Error{Kind: llm.KindValidation, Op: "task_enrichment",
			Err: errors.New("task has empty content")}
	}

	result, err := w.port.ProcessText(ctx, task.Content, llm.ContextTaskEnrichment)
	if err != nil {
		log.Printf("Worker: task %d enrichment failed: %v", id, err)
		if ferr := w.store.FailTask(ctx, id); ferr != nil && !errors.Is(ferr, storage.ErrNotFound) {
			log.Printf("Worker: %v", ferr)
		}
		return err
	}

	sugg := suggestionsFromMetadata(result.Metadata)

	if err := w.store.CompleteTask(ctx, id, result, time.Now().UTC(), sugg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("Worker: task %d deleted mid-processing, dropping result", id)
			return nil
		}
		return err
	}

	log.Printf("Worker: task %d enriched (title %q, %d tokens)", id, result.Title(), result.TokensUsed)
	return nil
}

// suggestionsFromMetadata pulls the optional suggested fields out of the
// enrichment metadata. Unparseable values are dropped, not fatal: the
// enrichment itself already succeeded.
func suggestionsFromMetadata(metadata map[string]interface{}) *storage.TaskSuggestions {
	if metadata == nil {
		return nil
	}

	sugg := &storage.TaskSuggestions{}
	found := false

	if v, ok := metadata[types.MetadataSuggestedPriority].(string); ok {
		if types.IsValidTaskPriority(types.TaskPriority(v)) {
			sugg.Priority = types.TaskPriority(v)
			found = true
		}
	}
	if v, ok := metadata[types.MetadataSuggestedDueDate].(string); ok {
		for _, layout := range []string{"2006-01-02", time.RFC3339} {
			if t, err := time.Parse(layout, v); err == nil {
				t = t.UTC()
				sugg.DueDate = &t
				found = true
				break
			}
		}
	}

	if !found {
		return nil
	}
	return sugg
}
