package store

// SchemaVersion is the current schema version for fresh databases.
const SchemaVersion = 1

// entityTableDDL is the shared shape of every entity table.
const entityTableDDL = `(
	id          TEXT PRIMARY KEY,
	data        JSON NOT NULL,
	owner_id    TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	deleted_at  DATETIME
)`

const schema = `
CREATE TABLE IF NOT EXISTS inspections ` + entityTableDDL + `;
CREATE TABLE IF NOT EXISTS assets ` + entityTableDDL + `;
CREATE TABLE IF NOT EXISTS form_templates ` + entityTableDDL + `;
CREATE TABLE IF NOT EXISTS folders ` + entityTableDDL + `;
CREATE TABLE IF NOT EXISTS users ` + entityTableDDL + `;

CREATE INDEX IF NOT EXISTS idx_inspections_updated ON inspections(updated_at);
CREATE INDEX IF NOT EXISTS idx_assets_updated ON assets(updated_at);
CREATE INDEX IF NOT EXISTS idx_form_templates_updated ON form_templates(updated_at);
CREATE INDEX IF NOT EXISTS idx_folders_updated ON folders(updated_at);
CREATE INDEX IF NOT EXISTS idx_users_updated ON users(updated_at);

CREATE TABLE IF NOT EXISTS sync_state (
	user_id      TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	last_sync_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, device_id)
);

CREATE TABLE IF NOT EXISTS sync_batches (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	operations JSON NOT NULL,
	metadata   JSON NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_batches_user ON sync_batches(user_id, timestamp);

CREATE TABLE IF NOT EXISTS sync_conflicts (
	id            TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL DEFAULT '',
	user_id       TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	client_change JSON NOT NULL,
	server_change JSON,
	detected_at   DATETIME NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	resolution    TEXT,
	error         TEXT NOT NULL DEFAULT '',
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolved_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sync_conflicts_user ON sync_conflicts(user_id, status);

CREATE TABLE IF NOT EXISTS offline_queues (
	user_id      TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	operations   JSON NOT NULL,
	last_updated DATETIME NOT NULL,
	PRIMARY KEY (user_id, device_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	sync_id        TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	device_id      TEXT NOT NULL,
	status         TEXT NOT NULL,
	applied_count  INTEGER NOT NULL DEFAULT 0,
	conflict_count INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_info (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Migration is a single versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations holds schema changes beyond the base schema, in order.
var Migrations = []Migration{}
