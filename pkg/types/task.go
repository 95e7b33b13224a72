package types

import "time"

// Task is a user task, either authored directly or extracted from a note
// during enrichment. Extracted tasks carry a NoteID backlink to the parent
// note and start in PENDING processing status.
type Task struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`

	// Content is the raw task text.
	Content string `json:"content"`

	// Status is the user-facing workflow status (TODO, IN_PROGRESS, DONE).
	Status TaskStatus `json:"status"`

	// Priority is the task priority. Enrichment may suggest a priority,
	// which is applied only when the current value is unset.
	Priority TaskPriority `json:"priority,omitempty"`

	// DueDate is the optional due date, possibly resolved by enrichment
	// from relative phrases in the content ("tomorrow", "next Friday").
	DueDate *time.Time `json:"due_date,omitempty"`

	// ParentID references a parent task. A single level of nesting is
	// supported; deeper chains are not interpreted by the core.
	ParentID *int64 `json:"parent_id,omitempty"`

	// NoteID backlinks to the note this task was extracted from, if any.
	NoteID *int64 `json:"note_id,omitempty"`

	ProcessingStatus ProcessingStatus  `json:"processing_status"`
	EnrichmentData   *EnrichmentResult `json:"enrichment_data,omitempty"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
