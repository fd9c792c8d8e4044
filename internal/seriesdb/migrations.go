package seriesdb

const schema = `
CREATE TABLE IF NOT EXISTS series (
    series_id INTEGER NOT NULL,
    project TEXT NOT NULL,
    url TEXT NOT NULL,
    submitter TEXT NOT NULL,
    email TEXT NOT NULL,
    submitted BOOLEAN NOT NULL DEFAULT FALSE,
    completed INTEGER NOT NULL DEFAULT 0,
    instance TEXT NOT NULL,
    downloaded INTEGER NOT NULL DEFAULT 0,
    branch TEXT,
    repo TEXT,
    sha TEXT,
    PRIMARY KEY (instance, series_id)
);

CREATE INDEX IF NOT EXISTS idx_series_project ON series(instance, project);

CREATE TABLE IF NOT EXISTS builds (
    series_id INTEGER NOT NULL,
    patch_id INTEGER NOT NULL,
    patch_url TEXT NOT NULL,
    patch_name TEXT NOT NULL,
    sha TEXT NOT NULL,
    instance TEXT NOT NULL,
    project TEXT NOT NULL,
    repo_name TEXT NOT NULL,
    github_sync INTEGER NOT NULL DEFAULT 0,
    travis_sync INTEGER NOT NULL DEFAULT 0,
    cirrus_sync INTEGER NOT NULL DEFAULT 0,
    dummy_sync INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (instance, patch_id)
);

CREATE INDEX IF NOT EXISTS idx_builds_series ON builds(instance, series_id);

CREATE TABLE IF NOT EXISTS recheck_requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL,
    requested_by TEXT NOT NULL,
    series_ref TEXT NOT NULL,
    patch_id INTEGER,
    ci_name TEXT NOT NULL,
    instance TEXT NOT NULL,
    project TEXT NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_recheck_dedup
    ON recheck_requests(instance, message_id, ci_name);

CREATE TABLE IF NOT EXISTS markers (
    instance TEXT NOT NULL,
    project TEXT NOT NULL,
    checked_at TIMESTAMP NOT NULL,
    PRIMARY KEY (instance, project)
);
`
