package postgres

// Schema is the embedded PostgreSQL schema for the enrichment core.
// All statements are idempotent (IF NOT EXISTS) so the schema can be
// re-applied on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
	id                BIGSERIAL PRIMARY KEY,
	user_id           TEXT NOT NULL,
	content           TEXT NOT NULL CHECK (content <> ''),
	attachments       JSONB,
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	enrichment_data   JSONB,
	processed_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_user_status
	ON notes(user_id, processing_status);

CREATE TABLE IF NOT EXISTS tasks (
	id                BIGSERIAL PRIMARY KEY,
	user_id           TEXT NOT NULL,
	content           TEXT NOT NULL CHECK (content <> ''),
	status            TEXT NOT NULL DEFAULT 'TODO',
	priority          TEXT,
	due_date          TIMESTAMPTZ,
	parent_id         BIGINT REFERENCES tasks(id) ON DELETE CASCADE,
	note_id           BIGINT REFERENCES notes(id) ON DELETE CASCADE,
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	enrichment_data   JSONB,
	processed_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_status
	ON tasks(user_id, processing_status);

CREATE INDEX IF NOT EXISTS idx_tasks_note
	ON tasks(note_id);

CREATE TABLE IF NOT EXISTS activities (
	id                BIGSERIAL PRIMARY KEY,
	user_id           TEXT NOT NULL,
	name              TEXT NOT NULL,
	activity_schema   JSONB NOT NULL,
	icon              TEXT,
	color             TEXT CHECK (color IS NULL OR color ~ '^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$'),
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	schema_render     JSONB,
	processed_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_activities_user_status
	ON activities(user_id, processing_status);

CREATE TABLE IF NOT EXISTS moments (
	id          TEXT PRIMARY KEY,
	activity_id BIGINT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	note_id     BIGINT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	data        JSONB NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_moments_note
	ON moments(note_id);

CREATE INDEX IF NOT EXISTS idx_moments_activity
	ON moments(activity_id);
`
