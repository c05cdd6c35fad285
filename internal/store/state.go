package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	errs "github.com/podseek/podseek/internal/errors"
)

const lastReindexKey = "last_reindex_unix"

// LastReindexTime returns when a full reindex last completed, or the
// zero time if one never has.
func (s *Store) LastReindexTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return time.Time{}, s.errClosed()
	}

	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE key = ?`, lastReindexKey,
	).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return time.Unix(unix, 0), nil
}

// SetLastReindexTime records the completion time of a full reindex.
func (s *Store) SetLastReindexTime(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastReindexKey, t.Unix())
	if err != nil {
		return errs.Wrap(errs.ErrCodeWriteFailed, err)
	}
	return nil
}
