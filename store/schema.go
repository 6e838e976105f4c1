package store

// Schema is the scrape dataset layout. Countries own universities own
// mappings; a bulk crawl replaces all three tables. Jobs live beside the
// dataset so crash recovery can see interrupted crawls.
const Schema = `
CREATE TABLE IF NOT EXISTS countries (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS universities (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    country_id INTEGER NOT NULL REFERENCES countries(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    UNIQUE (country_id, name)
);
CREATE INDEX IF NOT EXISTS idx_universities_country ON universities(country_id);

CREATE TABLE IF NOT EXISTS module_mappings (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    university_id       INTEGER NOT NULL REFERENCES universities(id) ON DELETE CASCADE,
    home_module_code    TEXT NOT NULL,
    home_module_name    TEXT NOT NULL DEFAULT '',
    home_module_type    TEXT NOT NULL DEFAULT '',
    partner_module_code TEXT NOT NULL DEFAULT '',
    partner_module_name TEXT NOT NULL DEFAULT '',
    academic_units      TEXT NOT NULL DEFAULT '',
    approval_status     TEXT NOT NULL DEFAULT '',
    approval_year       TEXT NOT NULL DEFAULT '',
    semester            TEXT NOT NULL DEFAULT '',
    created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mappings_university ON module_mappings(university_id);
CREATE INDEX IF NOT EXISTS idx_mappings_home_code  ON module_mappings(home_module_code);

CREATE TABLE IF NOT EXISTS scrape_jobs (
    id                     TEXT PRIMARY KEY,
    status                 TEXT NOT NULL DEFAULT 'pending',
    total_countries        INTEGER NOT NULL DEFAULT 0,
    completed_countries    INTEGER NOT NULL DEFAULT 0,
    total_universities     INTEGER NOT NULL DEFAULT 0,
    completed_universities INTEGER NOT NULL DEFAULT 0,
    current_country        TEXT NOT NULL DEFAULT '',
    current_university     TEXT NOT NULL DEFAULT '',
    started_at             INTEGER NOT NULL DEFAULT 0,
    completed_at           INTEGER NOT NULL DEFAULT 0,
    error_message          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON scrape_jobs(status);
`
