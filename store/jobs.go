package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gemscout/dbopen"
	"gemscout/scrape"
)

// CreateJob inserts a new pending job and returns its ID.
func (s *Store) CreateJob(ctx context.Context) (string, error) {
	id := s.ids()
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO scrape_jobs (id, status, started_at) VALUES (?, ?, ?)`,
		id, scrape.JobPending, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("store: create job: %w", err)
	}
	return id, nil
}

// UpdateJob applies the non-nil fields of upd. The current status is read
// inside the same transaction; a job already in a terminal state rejects
// every further update with scrape.ErrJobTerminal. Moving into a terminal
// state stamps completed_at.
func (s *Store) UpdateJob(ctx context.Context, id string, upd scrape.JobUpdate) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var current scrape.JobStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM scrape_jobs WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return scrape.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("store: read job %s: %w", id, err)
		}
		if current.Terminal() {
			return scrape.ErrJobTerminal
		}

		set := make([]string, 0, 8)
		args := make([]any, 0, 9)
		add := func(col string, v any) {
			set = append(set, col+" = ?")
			args = append(args, v)
		}

		if upd.Status != nil {
			add("status", string(*upd.Status))
			if upd.Status.Terminal() {
				add("completed_at", time.Now().UnixMilli())
			}
		}
		if upd.TotalCountries != nil {
			add("total_countries", *upd.TotalCountries)
		}
		if upd.CompletedCountries != nil {
			add("completed_countries", *upd.CompletedCountries)
		}
		if upd.TotalUniversities != nil {
			add("total_universities", *upd.TotalUniversities)
		}
		if upd.CompletedUniversities != nil {
			add("completed_universities", *upd.CompletedUniversities)
		}
		if upd.CurrentCountry != nil {
			add("current_country", *upd.CurrentCountry)
		}
		if upd.CurrentUniversity != nil {
			add("current_university", *upd.CurrentUniversity)
		}
		if upd.ErrorMessage != nil {
			add("error_message", *upd.ErrorMessage)
		}
		if len(set) == 0 {
			return nil
		}

		query := "UPDATE scrape_jobs SET "
		for i, clause := range set {
			if i > 0 {
				query += ", "
			}
			query += clause
		}
		query += " WHERE id = ?"
		args = append(args, id)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("store: update job %s: %w", id, err)
		}
		return nil
	})
}

// GetJob returns one job by ID, or scrape.ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*scrape.Job, error) {
	job, err := s.scanJob(s.db.QueryRowContext(ctx,
		jobColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scrape.ErrJobNotFound
	}
	return job, err
}

// RunningJob returns the active (pending or running) job, or nil when idle.
// At most one should exist; ties go to the most recently started.
func (s *Store) RunningJob(ctx context.Context) (*scrape.Job, error) {
	job, err := s.scanJob(s.db.QueryRowContext(ctx,
		jobColumns+` WHERE status IN ('pending', 'running')
		 ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// LatestJob returns the most recently started job regardless of state, or
// nil when no crawl has ever run.
func (s *Store) LatestJob(ctx context.Context) (*scrape.Job, error) {
	job, err := s.scanJob(s.db.QueryRowContext(ctx,
		jobColumns+` ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ForceCancelStaleJobs marks every pending or running job as cancelled.
// Called once at startup: a job still "running" with no live worker is a
// crash leftover that would block new crawls forever. The interruption was
// external, so the jobs read as cancelled rather than failed.
func (s *Store) ForceCancelStaleJobs(ctx context.Context) (int, error) {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE scrape_jobs
		 SET status = ?, completed_at = ?, error_message = ?
		 WHERE status IN ('pending', 'running')`,
		scrape.JobCancelled, time.Now().UnixMilli(), "interrupted by restart")
	if err != nil {
		return 0, fmt.Errorf("store: cancel stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Warn("store: force-cancelled stale jobs", "count", n)
	}
	return int(n), nil
}

const jobColumns = `
	SELECT id, status, total_countries, completed_countries,
	       total_universities, completed_universities,
	       current_country, current_university,
	       started_at, completed_at, error_message
	FROM scrape_jobs`

func (s *Store) scanJob(row *sql.Row) (*scrape.Job, error) {
	var j scrape.Job
	err := row.Scan(&j.ID, &j.Status, &j.TotalCountries, &j.CompletedCountries,
		&j.TotalUniversities, &j.CompletedUniversities,
		&j.CurrentCountry, &j.CurrentUniversity,
		&j.StartedAt, &j.CompletedAt, &j.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan job: %w", err)
	}
	return &j, nil
}
