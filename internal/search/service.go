// Package search is the query-serving layer over the store. It applies
// default result limits, caches recent result sets, and degrades every
// failure to an empty result so a broken query can never crash a caller.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/store"
	"github.com/podseek/podseek/internal/textnorm"
)

// Default result limits per document kind.
const (
	DefaultPodcastLimit = 50
	DefaultEpisodeLimit = 100
	DefaultCacheSize    = 256
)

// Config contains query-layer tuning options.
type Config struct {
	PodcastLimit int
	EpisodeLimit int

	// Exhaustive evaluates every episode fallback variant instead of
	// the default first two.
	Exhaustive bool

	// CacheSize is the per-kind LRU entry count.
	CacheSize int
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	return Config{
		PodcastLimit: DefaultPodcastLimit,
		EpisodeLimit: DefaultEpisodeLimit,
		CacheSize:    DefaultCacheSize,
	}
}

// Service answers podcast and episode searches. Cached entries are keyed
// by an index generation; Invalidate bumps the generation after a write
// so stale results age out without a cache sweep.
type Service struct {
	store  *store.Store
	config Config

	generation atomic.Uint64
	podcasts   *lru.Cache[string, []*store.PodcastHit]
	episodes   *lru.Cache[string, []*store.EpisodeHit]
}

// NewService creates a search service over an open store.
func NewService(s *store.Store, config Config) (*Service, error) {
	if config.PodcastLimit <= 0 {
		config.PodcastLimit = DefaultPodcastLimit
	}
	if config.EpisodeLimit <= 0 {
		config.EpisodeLimit = DefaultEpisodeLimit
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}

	podcasts, err := lru.New[string, []*store.PodcastHit](config.CacheSize)
	if err != nil {
		return nil, errs.New(errs.ErrCodeInternal, "podcast cache init failed", err)
	}
	episodes, err := lru.New[string, []*store.EpisodeHit](config.CacheSize)
	if err != nil {
		return nil, errs.New(errs.ErrCodeInternal, "episode cache init failed", err)
	}

	return &Service{
		store:    s,
		config:   config,
		podcasts: podcasts,
		episodes: episodes,
	}, nil
}

// Invalidate marks all cached results stale. Called after every index
// write phase.
func (s *Service) Invalidate() {
	s.generation.Add(1)
}

// SearchPodcasts returns up to the configured limit of podcast matches.
// Failures degrade to an empty result with a logged warning.
func (s *Service) SearchPodcasts(ctx context.Context, query string) []*store.PodcastHit {
	key := s.cacheKey(query, s.config.PodcastLimit)
	if hits, ok := s.podcasts.Get(key); ok {
		return hits
	}

	hits, err := s.store.SearchPodcasts(ctx, query, s.config.PodcastLimit)
	if err != nil {
		slog.Warn("podcast_search_degraded",
			slog.String("code", errs.GetCode(err)),
			slog.String("error", err.Error()))
		return nil
	}

	s.podcasts.Add(key, hits)
	return hits
}

// SearchEpisodes returns up to the configured limit of episode matches.
// Failures degrade to an empty result with a logged warning.
func (s *Service) SearchEpisodes(ctx context.Context, query string) []*store.EpisodeHit {
	key := s.cacheKey(query, s.config.EpisodeLimit)
	if hits, ok := s.episodes.Get(key); ok {
		return hits
	}

	hits, err := s.store.SearchEpisodes(ctx, query, s.config.EpisodeLimit, s.config.Exhaustive)
	if err != nil {
		slog.Warn("episode_search_degraded",
			slog.String("code", errs.GetCode(err)),
			slog.String("error", err.Error()))
		return nil
	}

	s.episodes.Add(key, hits)
	return hits
}

// cacheKey folds the current generation, the normalized query, and the
// limit into one key so equivalent raw queries share an entry.
func (s *Service) cacheKey(query string, limit int) string {
	return fmt.Sprintf("%d|%d|%s", s.generation.Load(), limit, textnorm.Normalize(query))
}
