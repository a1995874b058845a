package observability

import (
	"context"
	"database/sql"
)

// Schema holds the audit trail and the pass log. The tables can share the
// settings database; neither is read by change detection.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id      TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    operation     TEXT NOT NULL,
    user_id       TEXT,
    transport     TEXT NOT NULL,
    request_id    TEXT,
    parameters    TEXT NOT NULL DEFAULT '{}',
    error_message TEXT,
    duration_ms   INTEGER,
    status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation, timestamp DESC);

CREATE TABLE IF NOT EXISTS pass_log (
    pass_id     TEXT PRIMARY KEY,
    page_id     TEXT NOT NULL,
    timestamp   INTEGER NOT NULL,
    reason      TEXT NOT NULL,
    roots       INTEGER NOT NULL,
    nodes       INTEGER NOT NULL,
    changed     INTEGER NOT NULL,
    chained     INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_pass_page_time ON pass_log(page_id, timestamp DESC);
`

// Init applies the schema to db.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
