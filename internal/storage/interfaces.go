// Package storage provides the storage interface for the Robolog
// enrichment core.
//
// The interface is deliberately transaction-shaped around the enrichment
// state machine: ClaimNote/ClaimTask/ClaimActivity perform the atomic
// PENDING → PROCESSING transition with an idempotency guard, and the
// Complete* operations atomically persist the enrichment result together
// with the COMPLETED status and processed_at timestamp.
package storage

import (
	"context"
	"time"

	"github.com/robolog/robolog/pkg/types"
)

// TaskSuggestions carries optional LLM-suggested task fields.
// Each field is applied on completion only when the task's current value
// is unset.
type TaskSuggestions struct {
	Priority types.TaskPriority
	DueDate  *time.Time
}

// DerivedRows carries the tasks and moments derived from a note. They are
// persisted in the same transaction as the note's completion, so derived
// rows never exist without their parent reaching COMPLETED.
type DerivedRows struct {
	Tasks   []*types.Task
	Moments []*types.Moment
}

// Store provides persistence for notes, tasks, activities, and moments.
//
// Claim* semantics: the entity is loaded and transitioned to PROCESSING in
// one transaction. The second return value is false when the entity exists
// but the idempotency guard blocked the claim (already PROCESSING or
// COMPLETED). A missing entity returns (nil, false, ErrNotFound).
type Store interface {
	// Notes

	// CreateNote persists a new note in PENDING status and assigns its ID.
	CreateNote(ctx context.Context, note *types.Note) error

	// GetNote retrieves a note by ID. Returns ErrNotFound if absent.
	GetNote(ctx context.Context, id int64) (*types.Note, error)

	// DeleteNote removes a note. Dependent tasks and moments cascade.
	DeleteNote(ctx context.Context, id int64) error

	// ClaimNote atomically transitions a note to PROCESSING.
	ClaimNote(ctx context.Context, id int64) (*types.Note, bool, error)

	// CompleteNote atomically writes enrichment_data, processed_at, the
	// COMPLETED status, and any derived rows, all in one transaction.
	// If the note no longer exists, nothing is written and ErrNotFound
	// is returned; derived may be nil.
	CompleteNote(ctx context.Context, id int64, result *types.EnrichmentResult, processedAt time.Time, derived *DerivedRows) error

	// FailNote transitions a note to FAILED. Previously written fields
	// are left untouched; processed_at stays null.
	FailNote(ctx context.Context, id int64) error

	// ResetNote administratively returns a FAILED note to PENDING so it
	// can be re-enqueued.
	ResetNote(ctx context.Context, id int64) error

	// ListNotesByStatus returns up to limit notes in the given status,
	// oldest first. Used by the crash-recovery sweep.
	ListNotesByStatus(ctx context.Context, status types.ProcessingStatus, limit int) ([]*types.Note, error)

	// Tasks

	// CreateTask persists a new task in PENDING status and assigns its ID.
	CreateTask(ctx context.Context, task *types.Task) error

	// GetTask retrieves a task by ID. Returns ErrNotFound if absent.
	GetTask(ctx context.Context, id int64) (*types.Task, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id int64) error

	// ClaimTask atomically transitions a task to PROCESSING.
	ClaimTask(ctx context.Context, id int64) (*types.Task, bool, error)

	// CompleteTask atomically writes enrichment_data, processed_at, the
	// COMPLETED status, and any suggestions whose current value is unset.
	CompleteTask(ctx context.Context, id int64, result *types.EnrichmentResult, processedAt time.Time, sugg *TaskSuggestions) error

	// FailTask transitions a task to FAILED.
	FailTask(ctx context.Context, id int64) error

	// ResetTask administratively returns a FAILED task to PENDING.
	ResetTask(ctx context.Context, id int64) error

	// ListTasksByNote returns tasks extracted from the given note,
	// oldest first.
	ListTasksByNote(ctx context.Context, noteID int64) ([]*types.Task, error)

	// ListTasksByStatus returns up to limit tasks in the given status,
	// oldest first.
	ListTasksByStatus(ctx context.Context, status types.ProcessingStatus, limit int) ([]*types.Task, error)

	// Activities

	// CreateActivity persists a new activity in PENDING status and
	// assigns its ID. Name must be unique per user; color must be a
	// valid hex code when set.
	CreateActivity(ctx context.Context, activity *types.Activity) error

	// GetActivity retrieves an activity by ID. Returns ErrNotFound if absent.
	GetActivity(ctx context.Context, id int64) (*types.Activity, error)

	// GetActivityByName retrieves an activity by owner and name.
	GetActivityByName(ctx context.Context, userID, name string) (*types.Activity, error)

	// ListActivitiesByUser returns all activities owned by the user.
	ListActivitiesByUser(ctx context.Context, userID string) ([]*types.Activity, error)

	// DeleteActivity removes an activity. Dependent moments cascade.
	DeleteActivity(ctx context.Context, id int64) error

	// ClaimActivity atomically transitions an activity to PROCESSING.
	ClaimActivity(ctx context.Context, id int64) (*types.Activity, bool, error)

	// CompleteActivity atomically writes schema_render, processed_at,
	// and the COMPLETED status.
	CompleteActivity(ctx context.Context, id int64, render *types.SchemaRender, processedAt time.Time) error

	// FailActivity transitions an activity to FAILED.
	FailActivity(ctx context.Context, id int64) error

	// ResetActivity administratively returns a FAILED activity to PENDING.
	ResetActivity(ctx context.Context, id int64) error

	// ListActivitiesByStatus returns up to limit activities in the given
	// status, oldest first.
	ListActivitiesByStatus(ctx context.Context, status types.ProcessingStatus, limit int) ([]*types.Activity, error)

	// Moments

	// CreateMoment persists a derived moment.
	CreateMoment(ctx context.Context, moment *types.Moment) error

	// ListMomentsByNote returns moments extracted from the given note.
	ListMomentsByNote(ctx context.Context, noteID int64) ([]*types.Moment, error)

	// Close releases any resources held by the store.
	Close() error
}
