package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/quaketools/evcat/internal/catalog"
)

// Retry budget for lock contention. Delays double per attempt with jitter,
// so the worst case waits roughly the sum of the capped series before a
// BUSY error surfaces.
const (
	maxWriteAttempts = 8
	retryBaseDelay   = 5 * time.Millisecond
	retryMaxDelay    = 400 * time.Millisecond
)

// withTx runs fn inside a short-lived immediate transaction, retrying with
// bounded exponential backoff and jitter while the database file is locked
// by another process. After the attempt ceiling it fails with a BUSY error
// carrying the attempt count. Non-lock errors are returned as-is.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	delay := retryBaseDelay
	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isLocked(err) {
			return err
		}
		if attempt >= maxWriteAttempts {
			return catalog.BusyError(fmt.Sprintf("%s: catalog locked: %v", op, err), attempt)
		}

		// Full jitter keeps concurrent writers from retrying in lockstep.
		sleep := rand.N(delay) + delay/2
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// isLocked reports whether err is a transient SQLite lock error.
func isLocked(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
