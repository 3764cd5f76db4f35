package storage

const schemaSQL = `
-- One row per hondana build; status moves running -> completed | failed
CREATE TABLE IF NOT EXISTS builds (
    id TEXT PRIMARY KEY NOT NULL,
    source TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'failed')),
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_builds_source ON builds(source);
CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);

-- Every resource the spider parsed, in traversal order
CREATE TABLE IF NOT EXISTS resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    orig_url TEXT,
    media_type TEXT,
    relations TEXT,
    referrer TEXT,
    depth INTEGER NOT NULL DEFAULT 0,
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(build_id, url)
);

CREATE INDEX IF NOT EXISTS idx_resources_build ON resources(build_id);

CREATE TABLE IF NOT EXISTS redirects (
    build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    from_url TEXT NOT NULL,
    to_url TEXT NOT NULL,
    PRIMARY KEY (build_id, from_url)
);

CREATE TABLE IF NOT EXISTS build_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_message TEXT,
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_errors_build ON build_errors(build_id);
CREATE INDEX IF NOT EXISTS idx_errors_type ON build_errors(error_type);

CREATE TABLE IF NOT EXISTS outputs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    format TEXT NOT NULL,
    path TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Per-build counts for reporting
CREATE VIEW IF NOT EXISTS build_summary AS
SELECT
    b.id, b.source, b.status, b.started_at, b.finished_at,
    (SELECT COUNT(*) FROM resources r WHERE r.build_id = b.id) AS resources,
    (SELECT COUNT(*) FROM redirects d WHERE d.build_id = b.id) AS redirects,
    (SELECT COUNT(*) FROM build_errors e WHERE e.build_id = b.id) AS errors,
    (SELECT COUNT(*) FROM outputs o WHERE o.build_id = b.id) AS outputs
FROM builds b;

-- Key-value metadata about the database itself
CREATE TABLE IF NOT EXISTS manifest_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
