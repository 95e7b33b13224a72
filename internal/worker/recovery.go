package worker

import (
	"context"
	"log"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/enqueue"
	"github.com/robolog/robolog/pkg/types"
)

// recoveryBatch bounds how many stuck entities one sweep re-enqueues.
const recoveryBatch = 100

// RecoverPending re-enqueues entities stuck in PENDING with no live job:
// typically entities whose enqueue happened while the broker was down, or
// whose queued job expired before a worker picked it up. Run once at
// worker startup.
func (w *Workers) RecoverPending(ctx context.Context) {
	w.recoverNotes(ctx)
	w.recoverTasks(ctx)
	w.recoverActivities(ctx)
}

func (w *Workers) recoverNotes(ctx context.Context) {
	notes, err := w.store.ListNotesByStatus(ctx, types.StatusPending, recoveryBatch)
	if err != nil {
		log.Printf("Worker: recovery failed to list pending notes: %v", err)
		return
	}
	recovered := 0
	for _, n := range notes {
		if w.hasLiveJob(ctx, enqueue.NoteJobID(n.ID)) {
			continue
		}
		if w.enq.EnqueueNote(ctx, n.ID) != "" {
			recovered++
		}
	}
	if recovered > 0 {
		log.Printf("Worker: recovery re-enqueued %d pending notes", recovered)
	}
}

func (w *Workers) recoverTasks(ctx context.Context) {
	tasks, err := w.store.ListTasksByStatus(ctx, types.StatusPending, recoveryBatch)
	if err != nil {
		log.Printf("Worker: recovery failed to list pending tasks: %v", err)
		return
	}
	recovered := 0
	for _, t := range tasks {
		if w.hasLiveJob(ctx, enqueue.TaskJobID(t.ID)) {
			continue
		}
		if w.enq.EnqueueTask(ctx, t.ID) != "" {
			recovered++
		}
	}
	if recovered > 0 {
		log.Printf("Worker: recovery re-enqueued %d pending tasks", recovered)
	}
}

func (w *Workers) recoverActivities(ctx context.Context) {
	activities, err := w.store.ListActivitiesByStatus(ctx, types.StatusPending, recoveryBatch)
	if err != nil {
		log.Printf("Worker: recovery failed to list pending activities: %v", err)
		return
	}
	recovered := 0
	for _, a := range activities {
		if w.hasLiveJob(ctx, enqueue.ActivityJobID(a.ID)) {
			continue
		}
		if w.enq.EnqueueActivity(ctx, a.ID) != "" {
			recovered++
		}
	}
	if recovered > 0 {
		log.Printf("Worker: recovery re-enqueued %d pending activities", recovered)
	}
}

// hasLiveJob reports whether the id still has an undelivered broker job.
func (w *Workers) hasLiveJob(ctx context.Context, jobID string) bool {
	job := w.enq.JobStatus(ctx, jobID)
	if job == nil {
		return false
	}
	switch job.Status {
	case broker.JobQueued, broker.JobScheduled, broker.JobStarted:
		return true
	}
	return false
}
