package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podseek/podseek/internal/feed"
	"github.com/podseek/podseek/internal/store"
)

type fakeSource struct {
	podcasts    []*feed.Podcast
	episodes    map[string][]*feed.Episode
	podcastsErr error
	episodesErr map[string]error

	onFetchEpisodes func(p *feed.Podcast)
}

func (f *fakeSource) FetchPodcasts(ctx context.Context, forceRefresh bool) ([]*feed.Podcast, error) {
	if f.podcastsErr != nil {
		return nil, f.podcastsErr
	}
	return f.podcasts, nil
}

func (f *fakeSource) FetchEpisodes(ctx context.Context, p *feed.Podcast) ([]*feed.Episode, error) {
	if f.onFetchEpisodes != nil {
		f.onFetchEpisodes(p)
	}
	if err, ok := f.episodesErr[p.ID]; ok {
		return nil, err
	}
	return f.episodes[p.ID], nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("", store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeEpisodes(podcastID string, n int) []*feed.Episode {
	eps := make([]*feed.Episode, n)
	for i := range eps {
		eps[i] = &feed.Episode{
			ID:          fmt.Sprintf("%s-e%03d", podcastID, i),
			Title:       fmt.Sprintf("Episode %d", i),
			Description: "description text",
			PubDate:     "2024-01-02",
		}
	}
	return eps
}

func TestPipeline_RunFull_IndexesEverything(t *testing.T) {
	// Given: two podcasts with episodes
	s := newTestStore(t)
	src := &fakeSource{
		podcasts: []*feed.Podcast{
			{ID: "p1", Title: "Morning News", Description: "Daily news roundup"},
			{ID: "p2", Title: "Tech Talk", Description: "Weekly tech"},
		},
		episodes: map[string][]*feed.Episode{
			"p1": makeEpisodes("p1", 3),
			"p2": makeEpisodes("p2", 2),
		},
	}
	p := NewPipeline(s, src, DefaultConfig())

	// When: running a full reindex
	res := p.RunFull(context.Background(), nil)

	// Then: the run completes and everything is queryable
	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 2, res.Podcasts)
	assert.Equal(t, 5, res.Episodes)
	assert.Zero(t, res.SkippedPodcasts)

	ctx := context.Background()
	pc, err := s.PodcastCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pc)
	ec, err := s.EpisodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, ec)

	// And: a completed full run records its time
	ts, err := s.LastReindexTime(ctx)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestPipeline_RunFull_EmptyFetchLeavesIndexIntact(t *testing.T) {
	// Given: a populated index and a source that now returns nothing
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertPodcast(ctx, &store.PodcastDoc{PodcastID: "p1", Title: "Kept"}))
	_, err := s.AppendEpisodesBatch(ctx, []*store.EpisodeDoc{{
		EpisodeID: "e1", PodcastID: "p1", Title: "Kept Episode",
	}}, store.DefaultMaxFieldLength)
	require.NoError(t, err)

	p := NewPipeline(s, &fakeSource{}, DefaultConfig())

	// When: running full against the empty fetch
	res := p.RunFull(ctx, nil)

	// Then: the run is a successful no-op and nothing was wiped
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	pc, err := s.PodcastCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pc)
	ec, err := s.EpisodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ec)
}

func TestPipeline_RunFull_FetchErrorFailsRetryable(t *testing.T) {
	s := newTestStore(t)
	src := &fakeSource{podcastsErr: errors.New("network down")}
	p := NewPipeline(s, src, DefaultConfig())

	res := p.RunFull(context.Background(), nil)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, res.Retryable)
	assert.Error(t, res.Err)
}

func TestPipeline_RunFull_PodcastFailureIsolated(t *testing.T) {
	// Given: one podcast whose episode fetch fails
	s := newTestStore(t)
	src := &fakeSource{
		podcasts: []*feed.Podcast{
			{ID: "bad", Title: "Broken Feed"},
			{ID: "good", Title: "Working Feed"},
		},
		episodes: map[string][]*feed.Episode{
			"good": makeEpisodes("good", 2),
		},
		episodesErr: map[string]error{
			"bad": errors.New("parse failure"),
		},
	}
	p := NewPipeline(s, src, DefaultConfig())

	// When: running full
	res := p.RunFull(context.Background(), nil)

	// Then: the run completes with the failure confined to one podcast
	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.SkippedPodcasts)
	assert.Equal(t, 2, res.Episodes)

	ids, err := s.EpisodeIDsForPodcast(context.Background(), "good")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestPipeline_RunFull_ProgressPerBatch(t *testing.T) {
	// Given: enough episodes to span several batches
	s := newTestStore(t)
	src := &fakeSource{
		podcasts: []*feed.Podcast{{ID: "p1", Title: "Show"}},
		episodes: map[string][]*feed.Episode{"p1": makeEpisodes("p1", 250)},
	}
	p := NewPipeline(s, src, DefaultConfig())

	// When: running full with a recording callback
	var calls [][2]int
	res := p.RunFull(context.Background(), func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	})

	// Then: one callback per committed batch, all in whole podcasts
	require.Equal(t, OutcomeCompleted, res.Outcome)
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, [2]int{1, 1}, c)
	}
}

func TestPipeline_RunFull_StillFailingSubBatchesSkipped(t *testing.T) {
	// Given: a store that fails every write once episode fetching starts
	s := newTestStore(t)
	src := &fakeSource{
		podcasts: []*feed.Podcast{{ID: "p1", Title: "Show"}},
		episodes: map[string][]*feed.Episode{"p1": makeEpisodes("p1", 120)},
	}
	src.onFetchEpisodes = func(p *feed.Podcast) { require.NoError(t, s.Close()) }
	pl := NewPipeline(s, src, DefaultConfig())

	// When: running full
	res := pl.RunFull(context.Background(), nil)

	// Then: the run still reports an outcome instead of aborting
	require.Equal(t, OutcomeCompleted, res.Outcome)

	// And: both original batches were replayed at recovery size and
	// skipped (100 -> two sub-batches of 50, 20 -> one)
	assert.Equal(t, 3, res.SkippedBatches)
	assert.Zero(t, res.Episodes)
}

func TestPipeline_RunIncremental_AddsOnlyNewEpisodes(t *testing.T) {
	// Given: a fully indexed podcast
	s := newTestStore(t)
	src := &fakeSource{
		podcasts: []*feed.Podcast{{ID: "p1", Title: "Show"}},
		episodes: map[string][]*feed.Episode{"p1": makeEpisodes("p1", 3)},
	}
	p := NewPipeline(s, src, DefaultConfig())
	require.Equal(t, OutcomeCompleted, p.RunFull(context.Background(), nil).Outcome)

	// When: the feed loses one episode and gains one
	src.episodes["p1"] = append(makeEpisodes("p1", 2), &feed.Episode{
		ID: "p1-new", Title: "Fresh Episode",
	})
	res := p.RunIncremental(context.Background(), nil)

	// Then: only the new episode was written and nothing was removed
	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.Episodes)

	ids, err := s.EpisodeIDsForPodcast(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.Contains(t, ids, "p1-new")
	assert.Contains(t, ids, "p1-e002")
}

func TestPipeline_RunIncremental_NewPodcastIndexedFully(t *testing.T) {
	// Given: an empty index and a source with one podcast
	s := newTestStore(t)
	src := &fakeSource{
		podcasts: []*feed.Podcast{{ID: "p1", Title: "Morning News"}},
		episodes: map[string][]*feed.Episode{"p1": makeEpisodes("p1", 2)},
	}
	p := NewPipeline(s, src, DefaultConfig())

	// When: running incremental first
	res := p.RunIncremental(context.Background(), nil)

	// Then: the unknown podcast is indexed from scratch
	require.Equal(t, OutcomeCompleted, res.Outcome)
	ok, err := s.HasPodcast(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, res.Episodes)
}

func TestPipeline_CancelledBetweenPodcasts(t *testing.T) {
	// Given: cancellation triggered during the first podcast's fetch
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		podcasts: []*feed.Podcast{
			{ID: "p1", Title: "First"},
			{ID: "p2", Title: "Second"},
		},
		episodes: map[string][]*feed.Episode{
			"p1": makeEpisodes("p1", 1),
			"p2": makeEpisodes("p2", 1),
		},
	}
	src.onFetchEpisodes = func(p *feed.Podcast) { cancel() }
	pl := NewPipeline(s, src, DefaultConfig())

	// When: running full
	res := pl.RunFull(ctx, nil)

	// Then: the run stops before the second podcast
	assert.Equal(t, OutcomeCancelled, res.Outcome)
}

func TestPipeline_BatchSizeTiers(t *testing.T) {
	p := NewPipeline(nil, nil, DefaultConfig())

	assert.Equal(t, 100, p.batchSizeFor(1))
	assert.Equal(t, 100, p.batchSizeFor(500))
	assert.Equal(t, 500, p.batchSizeFor(501))
	assert.Equal(t, 500, p.batchSizeFor(5000))
	assert.Equal(t, 1500, p.batchSizeFor(5001))
}
