package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Morning News</title>
    <description>Daily news roundup</description>
    <item>
      <title>Budget Special</title>
      <description>A deep dive into the budget announcement</description>
      <guid>ep-001</guid>
      <pubDate>Tue, 02 Jan 2024 08:00:00 +0000</pubDate>
      <enclosure url="https://cdn.example.com/budget_special.mp3" length="1" type="audio/mpeg"/>
    </item>
    <item>
      <title>No Identity</title>
      <description>Item without guid or link is dropped</description>
    </item>
  </channel>
</rss>`

func newFeedServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSSSource_FetchPodcasts(t *testing.T) {
	// Given: one reachable feed
	srv := newFeedServer(t, nil)
	src := NewRSSSource([]string{srv.URL}, time.Second)

	// When: fetching the catalog
	podcasts, err := src.FetchPodcasts(context.Background(), false)
	require.NoError(t, err)

	// Then: the channel maps onto one podcast keyed by feed URL
	require.Len(t, podcasts, 1)
	assert.Equal(t, srv.URL, podcasts[0].ID)
	assert.Equal(t, "Morning News", podcasts[0].Title)
	assert.Equal(t, "Daily news roundup", podcasts[0].Description)
}

func TestRSSSource_FetchEpisodes(t *testing.T) {
	srv := newFeedServer(t, nil)
	src := NewRSSSource([]string{srv.URL}, time.Second)

	podcasts, err := src.FetchPodcasts(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, podcasts, 1)

	// When: fetching episodes for the podcast
	episodes, err := src.FetchEpisodes(context.Background(), podcasts[0])
	require.NoError(t, err)

	// Then: only items with a usable identity survive
	require.Len(t, episodes, 1)
	ep := episodes[0]
	assert.Contains(t, ep.ID, "ep-001")
	assert.Equal(t, "Budget Special", ep.Title)
	assert.Equal(t, "https://cdn.example.com/budget_special.mp3", ep.AudioURL)
	assert.NotEmpty(t, ep.PubDate)
}

func TestRSSSource_CachesUntilForceRefresh(t *testing.T) {
	// Given: a server counting requests
	var hits atomic.Int32
	srv := newFeedServer(t, &hits)
	src := NewRSSSource([]string{srv.URL}, time.Second)
	ctx := context.Background()

	podcasts, err := src.FetchPodcasts(ctx, false)
	require.NoError(t, err)
	require.Len(t, podcasts, 1)

	// When: fetching episodes for the same feed
	_, err = src.FetchEpisodes(ctx, podcasts[0])
	require.NoError(t, err)

	// Then: the cached parse was reused
	assert.Equal(t, int32(1), hits.Load())

	// And: forceRefresh goes back to the network
	_, err = src.FetchPodcasts(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRSSSource_AllFeedsFailing(t *testing.T) {
	// Given: a server that always errors
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	src := NewRSSSource([]string{srv.URL}, time.Second)

	// When: fetching the catalog
	_, err := src.FetchPodcasts(context.Background(), false)

	// Then: the outage is an error, not an empty list
	assert.Error(t, err)
}

func TestRSSSource_NoConfiguredFeeds(t *testing.T) {
	src := NewRSSSource(nil, time.Second)

	podcasts, err := src.FetchPodcasts(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, podcasts)
}
