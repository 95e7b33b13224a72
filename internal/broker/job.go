package broker

import (
	"strconv"
	"time"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

// Job lifecycle states.
const (
	// JobQueued: waiting on the pending list.
	JobQueued JobStatus = "queued"

	// JobStarted: claimed by a worker, handler running.
	JobStarted JobStatus = "started"

	// JobScheduled: failed retryably, parked until its retry time.
	JobScheduled JobStatus = "scheduled"

	// JobFinished: handler succeeded; retained until the result TTL.
	JobFinished JobStatus = "finished"

	// JobFailed: retries exhausted or error non-retryable.
	JobFailed JobStatus = "failed"
)

// Queue names are fixed; external services enqueue onto these three.
const (
	QueueNoteEnrichment = "note_enrichment"
	QueueTaskEnrichment = "task_enrichment"
	QueueActivitySchema = "activity_schema"
)

// Queues lists all queue names in dispatch order.
var Queues = []string{QueueNoteEnrichment, QueueTaskEnrichment, QueueActivitySchema}

// Job is the broker-side record of one enrichment request.
type Job struct {
	ID         string
	Queue      string
	Payload    string // JSON payload, opaque to the broker
	Status     JobStatus
	Attempts   int
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Redis key layout. Every key carries the robolog: prefix so a shared
// broker instance stays partitioned.
const keyPrefix = "robolog:"

func jobKey(id string) string        { return keyPrefix + "job:" + id }
func queueKey(name string) string    { return keyPrefix + "queue:" + name }
func scheduledKey(name string) string { return keyPrefix + "scheduled:" + name }
func failedKey(name string) string   { return keyPrefix + "failed:" + name }
func workerKey(id string) string     { return keyPrefix + "worker:" + id }

// toFields flattens the job into a Redis hash.
func (j *Job) toFields() map[string]interface{} {
	fields := map[string]interface{}{
		"id":          j.ID,
		"queue":       j.Queue,
		"payload":     j.Payload,
		"status":      string(j.Status),
		"attempts":    j.Attempts,
		"enqueued_at": j.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		"error":       j.Error,
	}
	if !j.StartedAt.IsZero() {
		fields["started_at"] = j.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !j.FinishedAt.IsZero() {
		fields["finished_at"] = j.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

// jobFromFields rebuilds a job from a Redis hash. Returns nil for an empty
// hash (expired or never-written job).
func jobFromFields(fields map[string]string) *Job {
	if len(fields) == 0 {
		return nil
	}

	job := &Job{
		ID:      fields["id"],
		Queue:   fields["queue"],
		Payload: fields["payload"],
		Status:  JobStatus(fields["status"]),
		Error:   fields["error"],
	}
	if v := fields["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	for _, f := range []struct {
		key  string
		dest *time.Time
	}{
		{"enqueued_at", &job.EnqueuedAt},
		{"started_at", &job.StartedAt},
		{"finished_at", &job.FinishedAt},
	} {
		if v := fields[f.key]; v != "" {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				*f.dest = t
			}
		}
	}
	return job
}
