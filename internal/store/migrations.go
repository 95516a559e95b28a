package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS forms (
	token           TEXT PRIMARY KEY,
	sender_email    TEXT NOT NULL COLLATE NOCASE,
	candidate_email TEXT NOT NULL COLLATE NOCASE,
	created_at      DATETIME NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'completed')),
	response_data   TEXT,
	completed_at    DATETIME
);

CREATE TABLE IF NOT EXISTS sessions (
	owner_email   TEXT PRIMARY KEY COLLATE NOCASE,
	provider      TEXT NOT NULL CHECK(provider IN ('google', 'microsoft')),
	access_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_forms_status ON forms(status);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_forms_status_created
	ON forms(status, created_at);

CREATE INDEX IF NOT EXISTS idx_forms_sender_email
	ON forms(sender_email);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
