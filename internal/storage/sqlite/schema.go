package sqlite

// Schema is the embedded SQLite schema for the enrichment core.
// All statements are idempotent (IF NOT EXISTS) so the schema can be
// re-applied on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL,
	content           TEXT NOT NULL CHECK (content <> ''),
	attachments       TEXT,
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	enrichment_data   TEXT,
	processed_at      TIMESTAMP,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_user_status
	ON notes(user_id, processing_status);

CREATE TABLE IF NOT EXISTS tasks (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL,
	content           TEXT NOT NULL CHECK (content <> ''),
	status            TEXT NOT NULL DEFAULT 'TODO',
	priority          TEXT,
	due_date          TIMESTAMP,
	parent_id         INTEGER REFERENCES tasks(id) ON DELETE CASCADE,
	note_id           INTEGER REFERENCES notes(id) ON DELETE CASCADE,
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	enrichment_data   TEXT,
	processed_at      TIMESTAMP,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_status
	ON tasks(user_id, processing_status);

CREATE INDEX IF NOT EXISTS idx_tasks_note
	ON tasks(note_id);

CREATE TABLE IF NOT EXISTS activities (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL,
	name              TEXT NOT NULL,
	activity_schema   TEXT NOT NULL,
	icon              TEXT,
	color             TEXT,
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	schema_render     TEXT,
	processed_at      TIMESTAMP,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL,
	UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_activities_user_status
	ON activities(user_id, processing_status);

CREATE TABLE IF NOT EXISTS moments (
	id          TEXT PRIMARY KEY,
	activity_id INTEGER NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	note_id     INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	data        TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL,
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_moments_note
	ON moments(note_id);

CREATE INDEX IF NOT EXISTS idx_moments_activity
	ON moments(activity_id);
`
