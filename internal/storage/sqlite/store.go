// Package sqlite provides a SQLite implementation of the storage interface.
// It is the embedded backend, used for local single-user deployments and
// throughout the test suite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/robolog/robolog/internal/storage"
	"github.com/robolog/robolog/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dsn, configures WAL mode, and applies
// the embedded schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Notes

// CreateNote persists a new note in PENDING status and assigns its ID.
func (s *Store) CreateNote(ctx context.Context, note *types.Note) error {
	if strings.TrimSpace(note.Content) == "" {
		return storage.ErrEmptyContent
	}

	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	note.ProcessingStatus = types.StatusPending

	attachments, err := marshalNullable(note.Attachments, len(note.Attachments) > 0)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal attachments: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (user_id, content, attachments, processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		note.UserID, note.Content, attachments, note.ProcessingStatus, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create note: %w", err)
	}

	note.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get note id: %w", err)
	}
	return nil
}

const noteColumns = `id, user_id, content, attachments, processing_status,
	enrichment_data, processed_at, created_at, updated_at`

// GetNote retrieves a note by ID.
func (s *Store) GetNote(ctx context.Context, id int64) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	return scanNote(row)
}

// DeleteNote removes a note. Dependent tasks and moments cascade.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "notes", id)
}

// ClaimNote atomically transitions a note to PROCESSING.
// The guard skips entities already PROCESSING or COMPLETED so that broker
// redeliveries collapse to a single acting worker.
func (s *Store) ClaimNote(ctx context.Context, id int64) (*types.Note, bool, error) {
	claimed, err := s.claimRow(ctx, "notes", id)
	if err != nil || !claimed {
		return nil, false, err
	}
	note, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return note, true, nil
}

// CompleteNote atomically writes enrichment_data, processed_at, COMPLETED,
// and any derived tasks and moments, all in one transaction. Derived rows
// are never visible without the parent note reaching COMPLETED.
func (s *Store) CompleteNote(ctx context.Context, id int64, result *types.EnrichmentResult, processedAt time.Time, derived *storage.DerivedRows) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal enrichment result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE notes
		SET processing_status = ?, enrichment_data = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		types.StatusCompleted, string(data), processedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to complete note: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if derived != nil {
		for _, task := range derived.Tasks {
			if err := insertTask(ctx, tx, task); err != nil {
				return err
			}
		}
		for _, moment := range derived.Moments {
			if err := insertMoment(ctx, tx, moment); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// FailNote transitions a note to FAILED without clearing prior fields.
func (s *Store) FailNote(ctx context.Context, id int64) error {
	return s.failRow(ctx, "notes", id)
}

// ResetNote administratively returns a FAILED note to PENDING.
func (s *Store) ResetNote(ctx context.Context, id int64) error {
	return s.resetRow(ctx, "notes", id)
}

// ListNotesByStatus returns up to limit notes in the given status, oldest first.
func (s *Store) ListNotesByStatus(ctx context.Context, status types.ProcessingStatus, limit int) ([]*types.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes
		 WHERE processing_status = ? ORDER BY created_at ASC LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// Tasks

// CreateTask persists a new task in PENDING status and assigns its ID.
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	return insertTask(ctx, s.db, task)
}

// execer abstracts *sql.DB and *sql.Tx for the insert helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertTask(ctx context.Context, q execer, task *types.Task) error {
	if strings.TrimSpace(task.Content) == "" {
		return storage.ErrEmptyContent
	}
	if task.Status == "" {
		task.Status = types.TaskStatusTodo
	}
	if !types.IsValidTaskStatus(task.Status) {
		return fmt.Errorf("sqlite: invalid task status %q", task.Status)
	}
	if task.Priority != "" && !types.IsValidTaskPriority(task.Priority) {
		return fmt.Errorf("sqlite: invalid task priority %q", task.Priority)
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.ProcessingStatus = types.StatusPending

	res, err := q.ExecContext(ctx, `
		INSERT INTO tasks (user_id, content, status, priority, due_date, parent_id, note_id,
			processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.UserID, task.Content, task.Status, nullString(string(task.Priority)),
		nullTime(task.DueDate), task.ParentID, task.NoteID,
		task.ProcessingStatus, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create task: %w", err)
	}

	task.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get task id: %w", err)
	}
	return nil
}

const taskColumns = `id, user_id, content, status, priority, due_date, parent_id, note_id,
	processing_status, enrichment_data, processed_at, created_at, updated_at`

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "tasks", id)
}

// ClaimTask atomically transitions a task to PROCESSING.
func (s *Store) ClaimTask(ctx context.Context, id int64) (*types.Task, bool, error) {
	claimed, err := s.claimRow(ctx, "tasks", id)
	if err != nil || !claimed {
		return nil, false, err
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// CompleteTask atomically writes enrichment_data, processed_at, COMPLETED,
// and any suggestions whose current value is unset.
func (s *Store) CompleteTask(ctx context.Context, id int64, result *types.EnrichmentResult, processedAt time.Time, sugg *storage.TaskSuggestions) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal enrichment result: %w", err)
	}

	var suggPriority interface{}
	var suggDue interface{}
	if sugg != nil {
		suggPriority = nullString(string(sugg.Priority))
		suggDue = nullTime(sugg.DueDate)
	}

	// Suggested fields never overwrite a value the user already set.
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET processing_status = ?, enrichment_data = ?, processed_at = ?, updated_at = ?,
			priority = CASE WHEN priority IS NULL OR priority = '' THEN COALESCE(?, priority) ELSE priority END,
			due_date = CASE WHEN due_date IS NULL THEN COALESCE(?, due_date) ELSE due_date END
		WHERE id = ?`,
		types.StatusCompleted, string(data), processedAt.UTC(), time.Now().UTC(),
		suggPriority, suggDue, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to complete task: %w", err)
	}
	return requireRow(res)
}

// FailTask transitions a task to FAILED.
func (s *Store) FailTask(ctx context.Context, id int64) error {
	return s.failRow(ctx, "tasks", id)
}

// ResetTask administratively returns a FAILED task to PENDING.
func (s *Store) ResetTask(ctx context.Context, id int64) error {
	return s.resetRow(ctx, "tasks", id)
}

// ListTasksByNote returns tasks extracted from the given note, oldest first.
func (s *Store) ListTasksByNote(ctx context.Context, noteID int64) ([]*types.Task, error) {
	return s.listTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE note_id = ? ORDER BY created_at ASC, id ASC`,
		noteID)
}

// ListTasksByStatus returns up to limit tasks in the given status, oldest first.
func (s *Store) ListTasksByStatus(ctx context.Context, status types.ProcessingStatus, limit int) ([]*types.Task, error) {
	return s.listTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE processing_status = ? ORDER BY created_at ASC LIMIT ?`,
		status, limit)
}

func (s *Store) listTasks(ctx context.Context, query string, args ...interface{}) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Activities

// CreateActivity persists a new activity in PENDING status and assigns its ID.
func (s *Store) CreateActivity(ctx context.Context, activity *types.Activity) error {
	if activity.Name == "" {
		return fmt.Errorf("sqlite: activity name is required")
	}
	if len(activity.ActivitySchema) == 0 {
		return fmt.Errorf("sqlite: activity schema is required")
	}
	if !types.IsValidHexColor(activity.Color) {
		return fmt.Errorf("sqlite: invalid hex color %q", activity.Color)
	}

	now := time.Now().UTC()
	activity.CreatedAt = now
	activity.UpdatedAt = now
	activity.ProcessingStatus = types.StatusPending

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (user_id, name, activity_schema, icon, color,
			processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.UserID, activity.Name, string(activity.ActivitySchema),
		nullString(activity.Icon), nullString(activity.Color),
		activity.ProcessingStatus, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return storage.ErrConflict
		}
		return fmt.Errorf("sqlite: failed to create activity: %w", err)
	}

	activity.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get activity id: %w", err)
	}
	return nil
}

const activityColumns = `id, user_id, name, activity_schema, icon, color,
	processing_status, schema_render, processed_at, created_at, updated_at`

// GetActivity retrieves an activity by ID.
func (s *Store) GetActivity(ctx context.Context, id int64) (*types.Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	return scanActivity(row)
}

// GetActivityByName retrieves an activity by owner and name.
func (s *Store) GetActivityByName(ctx context.Context, userID, name string) (*types.Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE user_id = ? AND name = ?`,
		userID, name)
	return scanActivity(row)
}

// ListActivitiesByUser returns all activities owned by the user.
func (s *Store) ListActivitiesByUser(ctx context.Context, userID string) ([]*types.Activity, error) {
	return s.listActivities(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE user_id = ? ORDER BY created_at ASC`,
		userID)
}

// DeleteActivity removes an activity. Dependent moments cascade.
func (s *Store) DeleteActivity(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "activities", id)
}

// ClaimActivity atomically transitions an activity to PROCESSING.
func (s *Store) ClaimActivity(ctx context.Context, id int64) (*types.Activity, bool, error) {
	claimed, err := s.claimRow(ctx, "activities", id)
	if err != nil || !claimed {
		return nil, false, err
	}
	activity, err := s.GetActivity(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return activity, true, nil
}

// CompleteActivity atomically writes schema_render, processed_at, and COMPLETED.
func (s *Store) CompleteActivity(ctx context.Context, id int64, render *types.SchemaRender, processedAt time.Time) error {
	data, err := json.Marshal(render)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal schema render: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE activities
		SET processing_status = ?, schema_render = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		types.StatusCompleted, string(data), processedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to complete activity: %w", err)
	}
	return requireRow(res)
}

// FailActivity transitions an activity to FAILED.
func (s *Store) FailActivity(ctx context.Context, id int64) error {
	return s.failRow(ctx, "activities", id)
}

// ResetActivity administratively returns a FAILED activity to PENDING.
func (s *Store) ResetActivity(ctx context.Context, id int64) error {
	return s.resetRow(ctx, "activities", id)
}

// ListActivitiesByStatus returns up to limit activities in the given status,
// oldest first.
func (s *Store) ListActivitiesByStatus(ctx context.Context, status types.ProcessingStatus, limit int) ([]*types.Activity, error) {
	return s.listActivities(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE processing_status = ? ORDER BY created_at ASC LIMIT ?`,
		status, limit)
}

func (s *Store) listActivities(ctx context.Context, query string, args ...interface{}) ([]*types.Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*types.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// Moments

// CreateMoment persists a derived moment.
func (s *Store) CreateMoment(ctx context.Context, moment *types.Moment) error {
	return insertMoment(ctx, s.db, moment)
}

func insertMoment(ctx context.Context, q execer, moment *types.Moment) error {
	if len(moment.Data) == 0 {
		return fmt.Errorf("sqlite: moment data is required")
	}

	now := time.Now().UTC()
	moment.CreatedAt = now
	if moment.Timestamp.IsZero() {
		moment.Timestamp = now
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO moments (id, activity_id, user_id, note_id, data, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		moment.ID, moment.ActivityID, moment.UserID, moment.NoteID,
		string(moment.Data), moment.Timestamp.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create moment: %w", err)
	}
	return nil
}

// ListMomentsByNote returns moments extracted from the given note.
func (s *Store) ListMomentsByNote(ctx context.Context, noteID int64) ([]*types.Moment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, user_id, note_id, data, timestamp, created_at
		FROM moments WHERE note_id = ? ORDER BY created_at ASC`, noteID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list moments: %w", err)
	}
	defer rows.Close()

	var moments []*types.Moment
	for rows.Next() {
		var m types.Moment
		var data string
		if err := rows.Scan(&m.ID, &m.ActivityID, &m.UserID, &m.NoteID, &data, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan moment: %w", err)
		}
		m.Data = json.RawMessage(data)
		moments = append(moments, &m)
	}
	return moments, rows.Err()
}

// Shared row helpers

// claimRow performs the atomic PENDING → PROCESSING transition with the
// idempotency guard. Returns (false, nil) when the guard blocked the claim
// and (false, ErrNotFound) when the row does not exist.
func (s *Store) claimRow(ctx context.Context, table string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+`
		SET processing_status = ?, updated_at = ?
		WHERE id = ? AND processing_status NOT IN (?, ?)`,
		types.StatusProcessing, time.Now().UTC(), id,
		types.StatusProcessing, types.StatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to claim %s row: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "guard blocked" from "row missing".
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check %s row: %w", table, err)
	}
	return false, nil
}

// failRow transitions a row to FAILED, leaving processed_at and any
// previously-written enrichment fields untouched.
func (s *Store) failRow(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET processing_status = ?, updated_at = ? WHERE id = ?`,
		types.StatusFailed, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to mark %s row failed: %w", table, err)
	}
	return requireRow(res)
}

// resetRow returns a FAILED row to PENDING. Any other current status is an
// invalid transition.
func (s *Store) resetRow(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+`
		SET processing_status = ?, updated_at = ?
		WHERE id = ? AND processing_status = ?`,
		types.StatusPending, time.Now().UTC(), id, types.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to reset %s row: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("sqlite: failed to check %s row: %w", table, err)
		}
		return storage.ErrInvalidTransition
	}
	return nil
}

func (s *Store) deleteRow(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete %s row: %w", table, err)
	}
	return requireRow(res)
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Scan helpers

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(sc scanner) (*types.Note, error) {
	var note types.Note
	var attachmentsJSON, enrichmentJSON sql.NullString
	var processedAt sql.NullTime

	err := sc.Scan(
		&note.ID, &note.UserID, &note.Content, &attachmentsJSON,
		&note.ProcessingStatus, &enrichmentJSON, &processedAt,
		&note.CreatedAt, &note.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan note: %w", err)
	}

	if attachmentsJSON.Valid && attachmentsJSON.String != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON.String), &note.Attachments); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal attachments: %w", err)
		}
	}
	if enrichmentJSON.Valid && enrichmentJSON.String != "" {
		note.EnrichmentData = &types.EnrichmentResult{}
		if err := json.Unmarshal([]byte(enrichmentJSON.String), note.EnrichmentData); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal enrichment data: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		note.ProcessedAt = &t
	}
	return &note, nil
}

func scanTask(sc scanner) (*types.Task, error) {
	var task types.Task
	var priority, enrichmentJSON sql.NullString
	var dueDate, processedAt sql.NullTime
	var parentID, noteID sql.NullInt64

	err := sc.Scan(
		&task.ID, &task.UserID, &task.Content, &task.Status, &priority,
		&dueDate, &parentID, &noteID, &task.ProcessingStatus,
		&enrichmentJSON, &processedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan task: %w", err)
	}

	if priority.Valid {
		task.Priority = types.TaskPriority(priority.String)
	}
	if dueDate.Valid {
		t := dueDate.Time.UTC()
		task.DueDate = &t
	}
	if parentID.Valid {
		task.ParentID = &parentID.Int64
	}
	if noteID.Valid {
		task.NoteID = &noteID.Int64
	}
	if enrichmentJSON.Valid && enrichmentJSON.String != "" {
		task.EnrichmentData = &types.EnrichmentResult{}
		if err := json.Unmarshal([]byte(enrichmentJSON.String), task.EnrichmentData); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal enrichment data: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		task.ProcessedAt = &t
	}
	return &task, nil
}

func scanActivity(sc scanner) (*types.Activity, error) {
	var activity types.Activity
	var schemaJSON string
	var icon, color, renderJSON sql.NullString
	var processedAt sql.NullTime

	err := sc.Scan(
		&activity.ID, &activity.UserID, &activity.Name, &schemaJSON,
		&icon, &color, &activity.ProcessingStatus, &renderJSON,
		&processedAt, &activity.CreatedAt, &activity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan activity: %w", err)
	}

	activity.ActivitySchema = json.RawMessage(schemaJSON)
	if icon.Valid {
		activity.Icon = icon.String
	}
	if color.Valid {
		activity.Color = color.String
	}
	if renderJSON.Valid && renderJSON.String != "" {
		activity.SchemaRender = &types.SchemaRender{}
		if err := json.Unmarshal([]byte(renderJSON.String), activity.SchemaRender); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal schema render: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		activity.ProcessedAt = &t
	}
	return &activity, nil
}

// Value helpers

func marshalNullable(v interface{}, present bool) (interface{}, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
