package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
)

// HandleActivity processes one activity_schema job: analyze the activity's
// JSON Schema and persist the suggested rendering strategy.
func (w *Workers) HandleActivity(ctx context.Context, job *broker.Job) error {
	id, err := payloadID(job.Payload, "activity_id")
	if err != nil {
		return err
	}

	activity, claimed, err := w.store.ClaimActivity(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("Worker: activity %d no longer exists, skipping job %s", id, job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Worker: activity %d already processing or completed, skipping job %s", id, job.ID)
		return nil
	}

	if len(activity.ActivitySchema) == 0 {
		if ferr := w.store.FailActivity(ctx, id); ferr != nil {
			log.Printf("Worker: %v", ferr)
		}
		return &llm.Error{Kind: llm.KindValidation, Op: "activity_schema",
			Err: errors.New("activity has no schema")}
	}

	render, err := w.port.AnalyzeActivitySchema(ctx, activity.ActivitySchema)
	if err != nil {
		log.Printf("Worker: activity %d schema analysis failed: %v", id, err)
		if ferr := w.store.FailActivity(ctx, id); ferr != nil && !errors.Is(ferr, storage.ErrNotFound) {
			log.Printf("Worker: %v", ferr)
		}
		return err
	}

	if err := w.store.CompleteActivity(ctx, id, render, time.Now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("Worker: activity %d deleted mid-processing, dropping result", id)
			return nil
		}
		return err
	}

	log.Printf("Worker: activity %d analyzed (render %s)", id, render.RenderType)
	return nil
}
