package storage

// Schema for the analyses database. Stats are stored as one JSON document
// per analysis and overwritten in full on every successful run; the scalar
// columns exist for listing without deserializing the blob.
const schema = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,              -- UUID
    platform TEXT NOT NULL,           -- telegram / whatsapp / instagram
    name TEXT,                        -- user-facing label
    job_status TEXT NOT NULL DEFAULT 'pending',
    stats TEXT,                       -- full ChatStats JSON, NULL until first save
    total_messages INTEGER DEFAULT 0,
    total_words INTEGER DEFAULT 0,
    participant_count INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(job_status);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);

-- Metadata table for tracking schema state
CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT,
    updated_at INTEGER NOT NULL
);
`

type migration struct {
	Version    int
	Statements []string
}

// migrations contains SQL migrations to run in order (tracked via sync_metadata.schema_version).
var migrations = []migration{
	{
		Version: 1,
		Statements: []string{
			`ALTER TABLE analyses ADD COLUMN error TEXT;`,
		},
	},
}
