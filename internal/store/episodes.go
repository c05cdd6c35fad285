package store

import (
	"context"
	"database/sql"
	"strings"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/textnorm"
)

// buildSearchBlob synthesizes the normalized text actually indexed for an
// episode: the truncated description, a punctuation-stripped lowercase
// copy of the title, the publication date string, and a token derived
// from the audio file name. Empty components are omitted.
func buildSearchBlob(doc *EpisodeDoc, cleanTitle string, maxFieldLength int) string {
	if maxFieldLength <= 0 {
		maxFieldLength = DefaultMaxFieldLength
	}

	parts := make([]string, 0, 4)

	description := textnorm.Normalize(textnorm.Truncate(textnorm.StripHTML(doc.Description), maxFieldLength))
	if description != "" {
		parts = append(parts, description)
	}
	if title := textnorm.Normalize(cleanTitle); title != "" {
		parts = append(parts, title)
	}
	if pubDate := textnorm.Normalize(doc.PubDate); pubDate != "" {
		parts = append(parts, pubDate)
	}
	if fileToken := textnorm.FileNameToken(doc.AudioURL); fileToken != "" {
		parts = append(parts, fileToken)
	}

	return strings.Join(parts, " ")
}

// AppendEpisodesBatch inserts-or-replaces a bounded list of episode rows
// in one transaction and returns the count actually written. This is the
// unit of incremental progress: each call commits independently, so a
// concurrent search observes the pre-batch or post-batch state, never a
// partially-written row.
func (s *Store) AppendEpisodesBatch(ctx context.Context, docs []*EpisodeDoc, maxFieldLength int) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, s.errClosed()
	}

	written := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// FTS5 virtual tables don't support REPLACE, so delete first.
		deleteStmt, err := tx.PrepareContext(ctx,
			`DELETE FROM episode_fts WHERE episode_id = ?`)
		if err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		defer deleteStmt.Close()

		insertStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO episode_fts(episode_id, podcast_id, title, search_blob) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		defer insertStmt.Close()

		idStmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO episode_ids(episode_id, podcast_id, title) VALUES (?, ?, ?)`)
		if err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		defer idStmt.Close()

		for _, doc := range docs {
			if doc == nil || doc.EpisodeID == "" {
				continue
			}

			title := textnorm.Truncate(textnorm.StripHTML(doc.Title), s.config.MaxTitleLength)
			blob := buildSearchBlob(doc, title, maxFieldLength)

			if _, err := deleteStmt.ExecContext(ctx, doc.EpisodeID); err != nil {
				return errs.Wrap(errs.ErrCodeWriteFailed, err)
			}
			if _, err := insertStmt.ExecContext(ctx, doc.EpisodeID, doc.PodcastID, title, blob); err != nil {
				if IsMemoryError(err) {
					return errs.New(errs.ErrCodeOutOfMemory, "batch write exhausted memory", err)
				}
				return errs.Wrap(errs.ErrCodeWriteFailed, err)
			}
			if _, err := idStmt.ExecContext(ctx, doc.EpisodeID, doc.PodcastID, title); err != nil {
				return errs.Wrap(errs.ErrCodeWriteFailed, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// DeleteEpisodesForPodcast removes every episode row for one podcast.
func (s *Store) DeleteEpisodesForPodcast(ctx context.Context, podcastID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM episode_fts WHERE podcast_id = ?`, podcastID); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM episode_ids WHERE podcast_id = ?`, podcastID); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		return nil
	})
}

// ClearEpisodes removes every episode row.
func (s *Store) ClearEpisodes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM episode_fts`); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM episode_ids`); err != nil {
			return errs.Wrap(errs.ErrCodeWriteFailed, err)
		}
		return nil
	})
}

// FindEpisodeByID returns the stored episode record, or nil when absent.
func (s *Store) FindEpisodeByID(ctx context.Context, episodeID string) (*IndexedEpisode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, s.errClosed()
	}

	var ep IndexedEpisode
	err := s.db.QueryRowContext(ctx,
		`SELECT episode_id, podcast_id, title FROM episode_ids WHERE episode_id = ?`,
		episodeID).Scan(&ep.EpisodeID, &ep.PodcastID, &ep.Title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return &ep, nil
}

// HasAnyEpisodes reports whether the episode index holds at least one row.
func (s *Store) HasAnyEpisodes(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, s.errClosed()
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM episode_ids LIMIT 1`).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return true, nil
}

// EpisodeIDsForPodcast returns the indexed episode ids for one podcast.
// Used by the pipeline for incremental diffing; served by the podcast_id
// index, not a table scan.
func (s *Store) EpisodeIDsForPodcast(ctx context.Context, podcastID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, s.errClosed()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id FROM episode_ids WHERE podcast_id = ? ORDER BY episode_id`, podcastID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return ids, nil
}

// EpisodeCount returns the number of indexed episodes.
func (s *Store) EpisodeCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, s.errClosed()
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episode_ids`).Scan(&count); err != nil {
		return 0, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return count, nil
}
