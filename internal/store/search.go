package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/textnorm"
)

// proximityWindow is the NEAR distance used by proximity variants.
const proximityWindow = 3

// defaultEpisodeVariants is how many fallback variants an episode search
// attempts unless exhaustive matching is requested. Evaluating every
// variant on every miss is too slow for interactive use.
const defaultEpisodeVariants = 2

// matchVariant is one candidate FTS5 match expression. Variants are
// evaluated lazily in priority order; the first non-empty result wins.
type matchVariant struct {
	name string
	expr string
}

// phraseExpr quotes a normalized string as an FTS5 phrase. Normalized
// text contains only letters, digits, and spaces, so no escaping beyond
// the quotes is needed.
func phraseExpr(normalized string) string {
	return `"` + normalized + `"`
}

// prefixAndExpr requires every token as a prefix. "budget announce"
// becomes `budget* announce*` (FTS5 ANDs space-separated terms).
func prefixAndExpr(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok + "*"
	}
	return strings.Join(parts, " ")
}

// proximityExpr requires all tokens within a window of proximityWindow terms.
func proximityExpr(tokens []string) string {
	return fmt.Sprintf("NEAR(%s, %d)", strings.Join(tokens, " "), proximityWindow)
}

// bigramExpr ORs quoted two-token windows over the query, matching rows
// where only part of the phrase exists verbatim.
func bigramExpr(tokens []string) string {
	parts := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		parts = append(parts, `"`+tokens[i]+" "+tokens[i+1]+`"`)
	}
	return strings.Join(parts, " OR ")
}

// podcastMatchExpr builds the single podcast match expression: multi-token
// queries OR together phrase, proximity, and prefix-AND; single tokens
// become a bare prefix.
func podcastMatchExpr(normalized string, tokens []string) string {
	if len(tokens) == 1 {
		return tokens[0] + "*"
	}
	return fmt.Sprintf("(%s) OR %s OR (%s)",
		phraseExpr(normalized), proximityExpr(tokens), prefixAndExpr(tokens))
}

// episodeVariants builds the prioritized list of episode match
// expressions: exact phrase, column-scoped phrase, proximity, bigram
// adjacency, prefix-AND. Multi-token-only variants are omitted for
// single-token queries.
func episodeVariants(normalized string, tokens []string) []matchVariant {
	phrase := phraseExpr(normalized)

	variants := []matchVariant{
		{name: "phrase", expr: phrase},
		{name: "phrase_fielded", expr: fmt.Sprintf("title : %s OR search_blob : %s", phrase, phrase)},
	}
	if len(tokens) >= 2 {
		variants = append(variants,
			matchVariant{name: "proximity", expr: proximityExpr(tokens)},
			matchVariant{name: "bigram", expr: bigramExpr(tokens)},
		)
	}
	variants = append(variants, matchVariant{name: "prefix_and", expr: prefixAndExpr(tokens)})
	return variants
}

// SearchPodcasts returns up to limit podcasts matching query. An empty
// normalized query returns an empty result without touching SQLite.
// Result ordering is whatever FTS5 returns.
func (s *Store) SearchPodcasts(ctx context.Context, query string, limit int) ([]*PodcastHit, error) {
	tokens := textnorm.Tokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	normalized := strings.Join(tokens, " ")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, s.errClosed()
	}

	expr := podcastMatchExpr(normalized, tokens)

	rows, err := s.db.QueryContext(ctx, `
		SELECT podcast_id, title, description
		FROM podcast_fts
		WHERE podcast_fts MATCH ?
		LIMIT ?
	`, expr, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	defer rows.Close()

	var hits []*PodcastHit
	for rows.Next() {
		var h PodcastHit
		if err := rows.Scan(&h.PodcastID, &h.Title, &h.Description); err != nil {
			return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
		}
		hits = append(hits, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return hits, nil
}

// SearchEpisodes returns up to limit episodes matching query, using
// tiered fallback: match-expression variants are evaluated in priority
// order and the first non-empty result set is returned (not a ranked
// union). Only the first two variants are attempted unless exhaustive is
// set. If all attempted variants come back empty and the query is a
// single token, a case-insensitive substring match on the title is tried
// last; multi-token substring matching is intentionally not attempted.
func (s *Store) SearchEpisodes(ctx context.Context, query string, limit int, exhaustive bool) ([]*EpisodeHit, error) {
	tokens := textnorm.Tokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	normalized := strings.Join(tokens, " ")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, s.errClosed()
	}

	variants := episodeVariants(normalized, tokens)
	attempts := len(variants)
	if !exhaustive && attempts > defaultEpisodeVariants {
		attempts = defaultEpisodeVariants
	}

	for _, v := range variants[:attempts] {
		hits, err := s.queryEpisodes(ctx, v.expr, limit)
		if err != nil {
			if isFTSSyntaxError(err) {
				slog.Debug("episode_variant_rejected",
					slog.String("variant", v.name),
					slog.String("error", err.Error()))
				continue
			}
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	if len(tokens) == 1 {
		return s.substringTitleMatch(ctx, tokens[0], limit)
	}
	return nil, nil
}

// queryEpisodes runs one match expression against the episode index.
func (s *Store) queryEpisodes(ctx context.Context, expr string, limit int) ([]*EpisodeHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_id, podcast_id, title
		FROM episode_fts
		WHERE episode_fts MATCH ?
		LIMIT ?
	`, expr, limit)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	defer rows.Close()

	var hits []*EpisodeHit
	for rows.Next() {
		var h EpisodeHit
		if err := rows.Scan(&h.EpisodeID, &h.PodcastID, &h.Title); err != nil {
			return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
		}
		hits = append(hits, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return hits, nil
}

// substringTitleMatch is the last-resort fallback for single-token
// queries: a case-insensitive substring scan over stored titles.
func (s *Store) substringTitleMatch(ctx context.Context, token string, limit int) ([]*EpisodeHit, error) {
	pattern := "%" + escapeLike(token) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_id, podcast_id, title
		FROM episode_ids
		WHERE LOWER(title) LIKE ? ESCAPE '\'
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	defer rows.Close()

	var hits []*EpisodeHit
	for rows.Next() {
		var h EpisodeHit
		if err := rows.Scan(&h.EpisodeID, &h.PodcastID, &h.Title); err != nil {
			return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
		}
		hits = append(hits, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeQueryFailed, err)
	}
	return hits, nil
}

// escapeLike escapes LIKE wildcards in a token. Normalized tokens carry
// neither, but the fallback must stay safe if normalization rules change.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
