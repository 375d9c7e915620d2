package store

// schemaVersion is the current schema version. Migrations are additive and
// idempotent; the version row records the highest applied migration.
const schemaVersion = 2

// Schema DDL. content_data is deliberately the last column of content_items
// so metadata-only reads never scan payload bytes.
const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS content_items (
    id TEXT PRIMARY KEY,
    content_type INTEGER NOT NULL,
    name TEXT NOT NULL CHECK(length(name) > 0 AND length(name) <= 255),
    owner_id INTEGER,
    owner_email TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    synced_at TEXT NOT NULL,
    deleted_at TEXT,
    content_size INTEGER NOT NULL,
    content_data BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_type
    ON content_items(content_type) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_content_owner
    ON content_items(owner_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_content_updated
    ON content_items(updated_at DESC) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_content_deleted
    ON content_items(deleted_at) WHERE deleted_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT,
    content_type INTEGER NOT NULL,
    state TEXT NOT NULL DEFAULT '{}',
    started_at TEXT NOT NULL,
    completed_at TEXT,
    item_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_type
    ON checkpoints(content_type, completed_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session
    ON checkpoints(session_id);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    total_items INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    config TEXT NOT NULL DEFAULT '{}',
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_sessions_kind ON sessions(kind, started_at);

CREATE TABLE IF NOT EXISTS id_mappings (
    content_type INTEGER NOT NULL,
    source_id TEXT NOT NULL,
    destination_id TEXT NOT NULL,
    source_instance_url TEXT NOT NULL,
    destination_instance_url TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (content_type, source_id, destination_instance_url)
);

CREATE TABLE IF NOT EXISTS dlq_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    content_type INTEGER NOT NULL,
    content_id TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_message TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    failed_at TEXT NOT NULL,
    content_data BLOB NOT NULL,
    UNIQUE (session_id, content_id)
);

CREATE INDEX IF NOT EXISTS idx_dlq_session ON dlq_entries(session_id);
CREATE INDEX IF NOT EXISTS idx_dlq_type ON dlq_entries(content_type);
`

// migrations holds additive schema changes beyond the base DDL, keyed by
// the version they bring the schema to. Each statement must be safe to
// re-run against a database that already has it applied.
var migrations = map[int][]string{
	// v2: composite lookup index for restoration listing.
	2: {
		`CREATE INDEX IF NOT EXISTS idx_content_type_id
		     ON content_items(content_type, id) WHERE deleted_at IS NULL`,
	},
}
