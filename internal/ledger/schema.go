package ledger

// schema holds every reported entry. Screenshots themselves live in the report or the
// evidence store; the ledger keeps their URL, size and SHA3-256 digest.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    test TEXT NOT NULL DEFAULT '',
    browser TEXT NOT NULL DEFAULT '',
    pass INTEGER NOT NULL,
    message TEXT NOT NULL,
    evidence_url TEXT NOT NULL DEFAULT '',
    evidence_bytes INTEGER NOT NULL DEFAULT 0,
    evidence_sha3 BLOB,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_run_id ON entries(run_id, created_at);
`
