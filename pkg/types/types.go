// Package types defines the core data structures for the Robolog enrichment
// system. These types represent notes, tasks, activities, moments, and the
// processing lifecycle they share under async LLM enrichment.
package types

// ProcessingStatus represents the enrichment lifecycle status of an entity.
type ProcessingStatus string

// Processing status constants. Transitions follow
// PENDING → PROCESSING → {COMPLETED, FAILED}, with * → SKIPPED as an
// administrative override and FAILED → PENDING as an explicit retry.
const (
	// StatusPending indicates the entity is newly created, awaiting enrichment.
	StatusPending ProcessingStatus = "PENDING"

	// StatusProcessing indicates a worker has claimed the entity.
	StatusProcessing ProcessingStatus = "PROCESSING"

	// StatusCompleted indicates enrichment finished and results are persisted.
	StatusCompleted ProcessingStatus = "COMPLETED"

	// StatusFailed indicates enrichment failed after retries.
	StatusFailed ProcessingStatus = "FAILED"

	// StatusSkipped indicates enrichment was administratively skipped.
	StatusSkipped ProcessingStatus = "SKIPPED"
)

// ValidProcessingStatuses contains all valid processing status values.
var ValidProcessingStatuses = []ProcessingStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
}

// IsValidProcessingStatus checks if the given status is a known value.
func IsValidProcessingStatus(s ProcessingStatus) bool {
	for _, v := range ValidProcessingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsValidStatusTransition validates processing status transitions.
//
// Valid transitions:
//
//	PENDING    -> PROCESSING | SKIPPED
//	PROCESSING -> COMPLETED | FAILED | SKIPPED
//	COMPLETED  -> SKIPPED
//	FAILED     -> PENDING (explicit retry) | SKIPPED
//	SKIPPED    -> (terminal, no transitions out)
func IsValidStatusTransition(current, next ProcessingStatus) bool {
	if next == StatusSkipped {
		return current != StatusSkipped
	}

	switch current {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	case StatusCompleted, StatusSkipped:
		return false
	default:
		return false
	}
}

// TaskStatus represents the user-facing workflow status of a task.
type TaskStatus string

// Task status constants.
const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// IsValidTaskStatus checks if the given task status is a known value.
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority represents the priority level of a task.
type TaskPriority string

// Task priority constants.
const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// IsValidTaskPriority checks if the given priority is a known value.
func IsValidTaskPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
