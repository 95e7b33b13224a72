// Package enqueue is the integration surface external services use to
// request enrichment. All operations are non-blocking and never panic or
// return an error across the boundary: on broker failure they log and
// return a zero value, so the caller's surrounding write-transaction can
// commit and the entity be re-enqueued later.
package enqueue

import (
	"context"
	"fmt"
	"log"

	"github.com/robolog/robolog/internal/broker"
)

// Service wraps the broker for enqueue-side callers.
type Service struct {
	broker *broker.Broker
}

// NewService creates the enqueue surface. A nil broker yields a service
// whose operations all report unavailability.
func NewService(b *broker.Broker) *Service {
	return &Service{broker: b}
}

// NoteJobID returns the deterministic job id for a note. Deterministic ids
// make duplicate enqueues of the same entity collapse in the broker.
func NoteJobID(noteID int64) string {
	return fmt.Sprintf("note_processing_%d", noteID)
}

// TaskJobID returns the deterministic job id for a task.
func TaskJobID(taskID int64) string {
	return fmt.Sprintf("task_processing_%d", taskID)
}

// ActivityJobID returns the deterministic job id for an activity.
func ActivityJobID(activityID int64) string {
	return fmt.Sprintf("activity_processing_%d", activityID)
}

// EnqueueNote queues a note for enrichment. Returns "" if the broker is
// unavailable.
func (s *Service) EnqueueNote(ctx context.Context, noteID int64) string {
	return s.enqueue(ctx, broker.QueueNoteEnrichment, NoteJobID(noteID),
		fmt.Sprintf(`{"note_id":%d}`, noteID))
}

// EnqueueTask queues a task for enrichment. Returns "" if the broker is
// unavailable.
func (s *Service) EnqueueTask(ctx context.Context, taskID int64) string {
	return s.enqueue(ctx, broker.QueueTaskEnrichment, TaskJobID(taskID),
		fmt.Sprintf(`{"task_id":%d}`, taskID))
}

// EnqueueActivity queues an activity for schema analysis. Returns "" if
// the broker is unavailable.
func (s *Service) EnqueueActivity(ctx context.Context, activityID int64) string {
	return s.enqueue(ctx, broker.QueueActivitySchema, ActivityJobID(activityID),
		fmt.Sprintf(`{"activity_id":%d}`, activityID))
}

func (s *Service) enqueue(ctx context.Context, queue, jobID, payload string) string {
	if s == nil || s.broker == nil {
		log.Printf("Enqueue: broker unavailable, skipping job %s", jobID)
		return ""
	}
	id, err := s.broker.Enqueue(ctx, queue, jobID, payload)
	if err != nil {
		log.Printf("Enqueue: failed to enqueue job %s: %v", jobID, err)
		return ""
	}
	return id
}

// JobStatus returns the broker's record for a job, or nil when the job is
// unknown or the broker unavailable.
func (s *Service) JobStatus(ctx context.Context, jobID string) *broker.Job {
	if s == nil || s.broker == nil {
		return nil
	}
	job, err := s.broker.FetchStatus(ctx, jobID)
	if err != nil {
		if err != broker.ErrJobNotFound {
			log.Printf("Enqueue: failed to fetch job %s: %v", jobID, err)
		}
		return nil
	}
	return job
}

// QueueHealth returns per-queue stats and the live worker count, or nil
// when the broker is unavailable.
func (s *Service) QueueHealth(ctx context.Context) *broker.Health {
	if s == nil || s.broker == nil {
		return nil
	}
	health, err := s.broker.QueueHealth(ctx, broker.Queues)
	if err != nil {
		log.Printf("Enqueue: failed to read queue health: %v", err)
		return nil
	}
	return health
}
