package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	busyRetries = 3
	busyBackoff = 100 * time.Millisecond
)

// IsBusy reports whether err is SQLite lock contention: SQLITE_BUSY or one
// of the locked-table message variants the driver surfaces as plain text.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn inside a transaction, retrying the whole transaction on
// lock contention. fn must be safe to run again from scratch.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return retryBusy(ctx, func() error { return runOnce(ctx, db, fn) })
}

// Exec runs a single statement, retrying on lock contention.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryBusy(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// retryBusy runs op up to busyRetries times, sleeping between attempts with
// linearly growing backoff. Only contention errors are retried; anything
// else, and the final contention error, pass through unwrapped so callers
// can inspect them.
func retryBusy(ctx context.Context, op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !IsBusy(err) || attempt == busyRetries {
			return err
		}
		if werr := sleepCtx(ctx, time.Duration(attempt)*busyBackoff); werr != nil {
			return fmt.Errorf("dbopen: retry wait: %w", werr)
		}
	}
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
