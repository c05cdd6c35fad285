package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	errs "github.com/podseek/podseek/internal/errors"
)

// DefaultTimeout bounds one feed fetch.
const DefaultTimeout = 30 * time.Second

// RSSSource fetches podcast metadata from a fixed list of RSS/Atom feed
// URLs. Parsed feeds are cached for the lifetime of the source so that
// FetchEpisodes does not refetch what FetchPodcasts already downloaded;
// forceRefresh drops the cache.
type RSSSource struct {
	parser *gofeed.Parser
	urls   []string

	mu    sync.Mutex
	feeds map[string]*gofeed.Feed
}

// NewRSSSource creates a source over the given feed URLs. A zero timeout
// falls back to DefaultTimeout.
func NewRSSSource(urls []string, timeout time.Duration) *RSSSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "podseek"

	return &RSSSource{
		parser: parser,
		urls:   urls,
		feeds:  make(map[string]*gofeed.Feed),
	}
}

// FetchPodcasts downloads and parses every configured feed. Individual
// feed failures are logged and skipped as long as at least one feed
// succeeds; if every feed fails the whole fetch is an error so callers
// never mistake an outage for an empty catalog.
func (s *RSSSource) FetchPodcasts(ctx context.Context, forceRefresh bool) ([]*Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if forceRefresh {
		s.feeds = make(map[string]*gofeed.Feed)
	}

	if len(s.urls) == 0 {
		return nil, nil
	}

	var podcasts []*Podcast
	var lastErr error

	for _, url := range s.urls {
		parsed, err := s.fetchFeedLocked(ctx, url)
		if err != nil {
			slog.Warn("feed_fetch_failed",
				slog.String("url", url),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		podcasts = append(podcasts, podcastFromFeed(url, parsed))
	}

	if len(podcasts) == 0 && lastErr != nil {
		return nil, errs.FeedError("all feed sources failed", lastErr)
	}
	return podcasts, nil
}

// FetchEpisodes returns the episode list for one podcast, reusing the
// cached feed when present.
func (s *RSSSource) FetchEpisodes(ctx context.Context, p *Podcast) ([]*Episode, error) {
	if p == nil || p.FeedURL == "" {
		return nil, errs.New(errs.ErrCodeFeedParse, "podcast has no feed url", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := s.fetchFeedLocked(ctx, p.FeedURL)
	if err != nil {
		return nil, err
	}

	episodes := make([]*Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		ep := episodeFromItem(p.ID, item)
		if ep == nil {
			continue
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

func (s *RSSSource) fetchFeedLocked(ctx context.Context, url string) (*gofeed.Feed, error) {
	if parsed, ok := s.feeds[url]; ok {
		return parsed, nil
	}

	parsed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeFeedUnavailable, err)
	}
	if parsed == nil {
		return nil, errs.New(errs.ErrCodeFeedParse, "feed parsed to nothing", nil)
	}

	s.feeds[url] = parsed
	return parsed, nil
}

// podcastFromFeed maps a parsed channel onto a Podcast. The feed URL is
// the stable podcast id since channel links often change.
func podcastFromFeed(url string, parsed *gofeed.Feed) *Podcast {
	p := &Podcast{
		ID:          url,
		Title:       parsed.Title,
		Description: parsed.Description,
		FeedURL:     url,
		Genres:      parsed.Categories,
	}
	if parsed.Image != nil {
		p.ImageURL = parsed.Image.URL
	}
	return p
}

// episodeFromItem maps one feed item onto an Episode, or nil when the
// item carries no usable identity.
func episodeFromItem(podcastID string, item *gofeed.Item) *Episode {
	if item == nil {
		return nil
	}

	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		return nil
	}
	// Prefix with the podcast so two feeds reusing a guid don't collide.
	id = fmt.Sprintf("%s|%s", podcastID, id)

	ep := &Episode{
		ID:          id,
		Title:       item.Title,
		Description: item.Description,
		PubDate:     item.Published,
	}
	if item.Image != nil {
		ep.ImageURL = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			ep.AudioURL = enc.URL
			break
		}
	}
	return ep
}
