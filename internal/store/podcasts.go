package store

import (
	"context"
	"database/sql"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/textnorm"
)

// cleanPodcast strips markup, collapses whitespace, and bounds the
// stored fields; the index never holds raw unbounded text.
func (s *Store) cleanPodcast(doc *PodcastDoc) (title, description string) {
	title = textnorm.Truncate(textnorm.StripHTML(doc.Title), s.config.MaxTitleLength)
	description = textnorm.Truncate(textnorm.StripHTML(doc.Description), DefaultMaxFieldLength)
	return
}

// UpsertPodcast replaces-or-inserts one podcast row by id. FTS5 tables do
// not support REPLACE, so the row is deleted first inside the same
// transaction; readers observe either the old row or the new one.
func (s *Store) UpsertPodcast(ctx context.Context, doc *PodcastDoc) error {
	if doc == nil || doc.PodcastID == "" {
		return errs.New(errs.ErrCodeWriteFailed, "podcast id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	title, description := s.cleanPodcast(doc)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM podcast_fts WHERE podcast_id = ?`, doc.PodcastID); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO podcast_fts(podcast_id, title, description) VALUES (?, ?, ?)`,
			doc.PodcastID, title, description); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO podcast_ids(podcast_id) VALUES (?)`, doc.PodcastID); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		return nil
	})
}

// ReplaceAllPodcasts wipes and repopulates the podcast collection in one
// transaction. A crash mid-operation leaves readers on the pre-state;
// they never observe an empty gap.
func (s *Store) ReplaceAllPodcasts(ctx context.Context, docs []*PodcastDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM podcast_fts`); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM podcast_ids`); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}

		insertStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO podcast_fts(podcast_id, title, description) VALUES (?, ?, ?)`)
		if err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		defer insertStmt.Close()

		idStmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO podcast_ids(podcast_id) VALUES (?)`)
		if err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		defer idStmt.Close()

		for _, doc := range docs {
			if doc == nil || doc.PodcastID == "" {
				continue
			}
			title, description := s.cleanPodcast(doc)
			if _, err := insertStmt.ExecContext(ctx, doc.PodcastID, title, description); err != nil {
				return errs.Wrap(errs.ErrCodeWriteFailed, err)
			}
			if _, err := idStmt.ExecContext(ctx, doc.PodcastID); err != nil {
				return errs.Wrap(errs.ErrCodeWriteFailed, err)
			}
		}
		return nil
	})
}

// ClearPodcasts removes every podcast row.
func (s *Store) ClearPodcasts(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM podcast_fts`); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM podcast_ids`); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		return nil
	})
}

// HasPodcast reports whether a podcast id is indexed. Keyed lookup.
func (s *Store) HasPodcast(ctx context.Context, podcastID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, s.errClosed()
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM podcast_ids WHERE podcast_id = ?`, podcastID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return true, nil
}

// PodcastCount returns the number of indexed podcasts.
func (s *Store) PodcastCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, s.errClosed()
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM podcast_ids`).Scan(&count); err != nil {
		return 0, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return count, nil
}
