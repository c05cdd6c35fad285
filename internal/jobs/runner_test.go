package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podseek/podseek/internal/feed"
	"github.com/podseek/podseek/internal/index"
	"github.com/podseek/podseek/internal/store"
)

type scriptedSource struct {
	mu       sync.Mutex
	failures int
	fetches  atomic.Int32
	block    chan struct{}
}

func (f *scriptedSource) FetchPodcasts(ctx context.Context, forceRefresh bool) ([]*feed.Podcast, error) {
	f.fetches.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("source unavailable")
	}
	return []*feed.Podcast{{ID: "p1", Title: "Morning News"}}, nil
}

func (f *scriptedSource) FetchEpisodes(ctx context.Context, p *feed.Podcast) ([]*feed.Episode, error) {
	return []*feed.Episode{{ID: "e1", Title: "Budget Special"}}, nil
}

type countingInvalidator struct{ calls atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

func newRunner(t *testing.T, src feed.Source, inv Invalidator) *Runner {
	t.Helper()
	s, err := store.Open("", store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p := index.NewPipeline(s, src, index.DefaultConfig())
	return NewRunner(p, inv, Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})
}

func TestRunner_RunFull_RecordsOutcomeAndInvalidates(t *testing.T) {
	// Given: a healthy source
	inv := &countingInvalidator{}
	r := newRunner(t, &scriptedSource{}, inv)

	// When: triggering a full run
	res, err := r.RunFull(context.Background(), nil)
	require.NoError(t, err)

	// Then: the run completed, was recorded, and dropped caches
	assert.Equal(t, index.OutcomeCompleted, res.Outcome)
	last := r.Last()
	require.NotNil(t, last)
	assert.Equal(t, "full", last.Mode)
	assert.Equal(t, int32(1), inv.calls.Load())
}

func TestRunner_RetriesRetryableFailure(t *testing.T) {
	// Given: a source that fails twice before recovering
	src := &scriptedSource{failures: 2}
	r := newRunner(t, src, nil)

	// When: triggering a full run
	res, err := r.RunFull(context.Background(), nil)
	require.NoError(t, err)

	// Then: backoff retries carried the run to completion
	assert.Equal(t, index.OutcomeCompleted, res.Outcome)
	assert.Equal(t, int32(3), src.fetches.Load())
}

func TestRunner_GivesUpAfterMaxRetries(t *testing.T) {
	// Given: a source that never recovers
	src := &scriptedSource{failures: 100}
	r := newRunner(t, src, nil)

	res, err := r.RunFull(context.Background(), nil)
	require.NoError(t, err)

	// Then: the final outcome is the failed run
	assert.Equal(t, index.OutcomeFailed, res.Outcome)
	assert.Equal(t, int32(4), src.fetches.Load())
}

func TestRunner_SingleFlight(t *testing.T) {
	// Given: a source blocked mid-fetch
	src := &scriptedSource{block: make(chan struct{})}
	r := newRunner(t, src, nil)

	// When: two callers trigger full runs concurrently
	var wg sync.WaitGroup
	results := make([]*index.RunResult, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.RunFull(context.Background(), nil)
			require.NoError(t, err)
			results[i] = res
		}()
	}

	// Give both goroutines time to reach the singleflight gate.
	for src.fetches.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(src.block)
	wg.Wait()

	// Then: exactly one fetch happened and both callers share its result
	assert.Equal(t, int32(1), src.fetches.Load())
	assert.Same(t, results[0], results[1])
}

func TestRunner_SingleRunAcrossModes(t *testing.T) {
	// Given: a full run blocked mid-fetch
	src := &scriptedSource{block: make(chan struct{})}
	r := newRunner(t, src, nil)

	var wg sync.WaitGroup
	results := make([]*index.RunResult, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := r.RunFull(context.Background(), nil)
		require.NoError(t, err)
		results[0] = res
	}()
	for src.fetches.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// When: an incremental trigger arrives while it is running
	go func() {
		defer wg.Done()
		res, err := r.RunIncremental(context.Background(), nil)
		require.NoError(t, err)
		results[1] = res
	}()
	time.Sleep(10 * time.Millisecond)
	close(src.block)
	wg.Wait()

	// Then: only one run executed and the second trigger joined it
	assert.Equal(t, int32(1), src.fetches.Load())
	assert.Same(t, results[0], results[1])
}
