package storage

// SchemaVersion is the current audit database schema version.
const SchemaVersion = 1

// Schema creates the audit tables. Times are Unix nanoseconds so that both
// drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    trace_id      TEXT PRIMARY KEY,
    id            TEXT NOT NULL,
    data_hash     TEXT NOT NULL,
    model_version TEXT NOT NULL,
    allowed       INTEGER NOT NULL,
    confidence    REAL NOT NULL,
    reasons       TEXT NOT NULL,
    decided_at    INTEGER NOT NULL,
    recorded_at   INTEGER NOT NULL,
    content_hash  TEXT NOT NULL,
    document      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_decided_at ON audit_records(decided_at);
CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_model_version ON audit_records(model_version);
CREATE INDEX IF NOT EXISTS idx_audit_data_hash ON audit_records(data_hash);
CREATE INDEX IF NOT EXISTS idx_audit_allowed ON audit_records(allowed);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, ?)
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion returns the newest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

// recordColumns is the column order used by upsertRecord and scanRecord.
const recordColumns = `trace_id, id, data_hash, model_version, allowed, confidence,
    reasons, decided_at, recorded_at, content_hash, document`

const upsertRecord = `
INSERT INTO audit_records (` + recordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(trace_id) DO UPDATE SET
    id = excluded.id,
    data_hash = excluded.data_hash,
    model_version = excluded.model_version,
    allowed = excluded.allowed,
    confidence = excluded.confidence,
    reasons = excluded.reasons,
    decided_at = excluded.decided_at,
    recorded_at = excluded.recorded_at,
    content_hash = excluded.content_hash,
    document = excluded.document;
`
