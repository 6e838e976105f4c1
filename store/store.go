// Package store persists the scraped portal dataset and crawl jobs in
// SQLite. It implements the scrape package's Store and JobStore interfaces
// and adds the query side the discovery pipeline reads from.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"gemscout/dbopen"
	"gemscout/idgen"
	"gemscout/scrape"
)

var (
	_ scrape.Store    = (*Store)(nil)
	_ scrape.JobStore = (*Store)(nil)
)

// Store wraps the SQLite database holding countries, universities, module
// mappings, and scrape jobs.
type Store struct {
	db  *sql.DB
	ids idgen.Generator
	log *slog.Logger
}

// Open opens (and migrates) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return New(db, logger), nil
}

// New wraps an already-open database. The schema must be applied.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:  db,
		ids: idgen.Prefixed("job_", idgen.UUIDv7()),
		log: logger,
	}
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
