package sqlite

const schema = `
-- Run documents. The JSON document is authoritative; status and created_at
-- are copied out for listing.
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    document TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

-- Raw transcripts, one per run, written once
CREATE TABLE IF NOT EXISTS transcripts (
    run_id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Idempotency ledger. Append-only; seq preserves insertion order so lookup
-- returns the earliest match.
CREATE TABLE IF NOT EXISTS ledger (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    idempotency_key TEXT NOT NULL,
    created_at TEXT NOT NULL,
    issue_key TEXT NOT NULL,
    issue_url TEXT NOT NULL DEFAULT '',
    request_fingerprint TEXT NOT NULL DEFAULT '',
    site TEXT NOT NULL DEFAULT '',
    project TEXT NOT NULL DEFAULT '',
    issue_type TEXT NOT NULL DEFAULT '',
    run_id TEXT NOT NULL DEFAULT '',
    candidate_index INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_ledger_key ON ledger(idempotency_key, seq);
`
