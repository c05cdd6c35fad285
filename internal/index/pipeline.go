// Package index drives the search store to reflect the current state of
// the configured feed sources. A run is either a full rebuild or an
// incremental update; both proceed podcast by podcast with bounded batch
// writes so progress survives interruption and memory stays flat.
package index

import (
	"context"
	"log/slog"
	"time"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/feed"
	"github.com/podseek/podseek/internal/store"
)

// Outcome is the terminal state of one pipeline run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Progress receives (processed, total) counted in whole podcasts. It is
// invoked after every committed batch, so a podcast with many episodes
// reports the same processed count several times.
type Progress func(processed, total int)

// RunResult summarizes one pipeline run.
type RunResult struct {
	Outcome         Outcome
	Podcasts        int
	Episodes        int
	SkippedPodcasts int
	SkippedBatches  int
	Retryable       bool
	Duration        time.Duration
	Err             error
}

// Config contains pipeline tuning options.
type Config struct {
	// Batch sizes per corpus-size tier. Larger batches amortize
	// transaction overhead but risk larger memory spikes.
	SmallBatch  int
	MediumBatch int
	LargeBatch  int

	// Corpus-size thresholds selecting the tier.
	SmallThreshold  int
	MediumThreshold int

	// RecoveryBatch is the sub-batch size used to retry a failed batch.
	RecoveryBatch int

	// MaxFieldLength bounds the description portion of a search blob.
	MaxFieldLength int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		SmallBatch:      100,
		MediumBatch:     500,
		LargeBatch:      1500,
		SmallThreshold:  500,
		MediumThreshold: 5000,
		RecoveryBatch:   50,
		MaxFieldLength:  store.DefaultMaxFieldLength,
	}
}

// Pipeline orchestrates fetch, normalize, and write against the store.
// It holds no run state of its own; single-flight across runs is the
// caller's responsibility.
type Pipeline struct {
	store  *store.Store
	source feed.Source
	config Config
}

// NewPipeline creates a pipeline over an open store and a feed source.
func NewPipeline(s *store.Store, source feed.Source, config Config) *Pipeline {
	if config.SmallBatch <= 0 {
		config = DefaultConfig()
	}
	return &Pipeline{store: s, source: source, config: config}
}

// RunFull rebuilds the whole index: the podcast collection is replaced
// wholesale and every podcast's episodes are deleted and reindexed. An
// empty fetch terminates as a successful no-op before any destructive
// step, so a transient outage can never wipe a good index.
func (p *Pipeline) RunFull(ctx context.Context, progress Progress) *RunResult {
	start := time.Now()

	podcasts, err := p.source.FetchPodcasts(ctx, true)
	if err != nil {
		return p.failed(start, fetchError(err))
	}
	if len(podcasts) == 0 {
		slog.Info("reindex_noop", slog.String("mode", "full"))
		return p.completed(start, &runStats{})
	}

	docs := make([]*store.PodcastDoc, 0, len(podcasts))
	for _, pc := range podcasts {
		docs = append(docs, podcastDoc(pc))
	}
	if err := p.store.ReplaceAllPodcasts(ctx, docs); err != nil {
		return p.failed(start, err)
	}

	stats := &runStats{}
	total := len(podcasts)

	for i, pc := range podcasts {
		if ctx.Err() != nil {
			return p.cancelled(start, stats)
		}

		if err := p.store.DeleteEpisodesForPodcast(ctx, pc.ID); err != nil {
			slog.Warn("podcast_skipped",
				slog.String("podcast_id", pc.ID),
				slog.String("error", err.Error()))
			stats.skippedPodcasts++
			p.report(progress, i+1, total)
			continue
		}

		episodes, err := p.source.FetchEpisodes(ctx, pc)
		if err != nil {
			slog.Warn("podcast_skipped",
				slog.String("podcast_id", pc.ID),
				slog.String("error", err.Error()))
			stats.skippedPodcasts++
			p.report(progress, i+1, total)
			continue
		}

		p.writeEpisodes(ctx, episodeDocs(pc.ID, episodes), stats, func() {
			p.report(progress, i+1, total)
		})
		stats.podcasts++
		if len(episodes) == 0 {
			p.report(progress, i+1, total)
		}
	}

	if err := p.store.SetLastReindexTime(ctx, time.Now()); err != nil {
		slog.Warn("reindex_time_not_recorded", slog.String("error", err.Error()))
	}
	return p.completed(start, stats)
}

// RunIncremental adds episodes whose id is not yet indexed and leaves
// every existing row untouched. Stale episodes that disappeared upstream
// are deliberately not purged; bounded cost over completeness.
func (p *Pipeline) RunIncremental(ctx context.Context, progress Progress) *RunResult {
	start := time.Now()

	podcasts, err := p.source.FetchPodcasts(ctx, false)
	if err != nil {
		return p.failed(start, fetchError(err))
	}
	if len(podcasts) == 0 {
		slog.Info("reindex_noop", slog.String("mode", "incremental"))
		return p.completed(start, &runStats{})
	}

	stats := &runStats{}
	total := len(podcasts)

	for i, pc := range podcasts {
		if ctx.Err() != nil {
			return p.cancelled(start, stats)
		}

		if err := p.indexPodcastIncremental(ctx, pc); err != nil {
			slog.Warn("podcast_skipped",
				slog.String("podcast_id", pc.ID),
				slog.String("error", err.Error()))
			stats.skippedPodcasts++
			p.report(progress, i+1, total)
			continue
		}

		episodes, err := p.source.FetchEpisodes(ctx, pc)
		if err != nil {
			slog.Warn("podcast_skipped",
				slog.String("podcast_id", pc.ID),
				slog.String("error", err.Error()))
			stats.skippedPodcasts++
			p.report(progress, i+1, total)
			continue
		}

		fresh, err := p.newEpisodesOnly(ctx, pc.ID, episodes)
		if err != nil {
			slog.Warn("podcast_skipped",
				slog.String("podcast_id", pc.ID),
				slog.String("error", err.Error()))
			stats.skippedPodcasts++
			p.report(progress, i+1, total)
			continue
		}

		p.writeEpisodes(ctx, fresh, stats, func() {
			p.report(progress, i+1, total)
		})
		stats.podcasts++
		if len(fresh) == 0 {
			p.report(progress, i+1, total)
		}
	}

	return p.completed(start, stats)
}

// indexPodcastIncremental upserts the podcast row when the podcast is
// not yet known. Known podcasts keep their indexed metadata.
func (p *Pipeline) indexPodcastIncremental(ctx context.Context, pc *feed.Podcast) error {
	known, err := p.store.HasPodcast(ctx, pc.ID)
	if err != nil {
		return err
	}
	if known {
		return nil
	}
	return p.store.UpsertPodcast(ctx, podcastDoc(pc))
}

// newEpisodesOnly filters the fetched episodes down to ids not already
// indexed for the podcast.
func (p *Pipeline) newEpisodesOnly(ctx context.Context, podcastID string, episodes []*feed.Episode) ([]*store.EpisodeDoc, error) {
	existing, err := p.store.EpisodeIDsForPodcast(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	var fresh []*store.EpisodeDoc
	for _, ep := range episodes {
		if ep == nil || ep.ID == "" {
			continue
		}
		if _, ok := seen[ep.ID]; ok {
			continue
		}
		fresh = append(fresh, episodeDoc(podcastID, ep))
	}
	return fresh, nil
}

// fetchError types a catalog-fetch failure so the job runner sees it as
// retryable. Errors already carrying a code pass through.
func fetchError(err error) error {
	if errs.GetCode(err) != "" {
		return err
	}
	return errs.FeedError("podcast fetch failed", err)
}

type runStats struct {
	podcasts        int
	episodes        int
	skippedPodcasts int
	skippedBatches  int
}

func (p *Pipeline) report(progress Progress, processed, total int) {
	if progress != nil {
		progress(processed, total)
	}
}

func (p *Pipeline) completed(start time.Time, stats *runStats) *RunResult {
	res := &RunResult{
		Outcome:         OutcomeCompleted,
		Podcasts:        stats.podcasts,
		Episodes:        stats.episodes,
		SkippedPodcasts: stats.skippedPodcasts,
		SkippedBatches:  stats.skippedBatches,
		Duration:        time.Since(start),
	}
	slog.Info("reindex_complete",
		slog.Int("podcasts", res.Podcasts),
		slog.Int("episodes", res.Episodes),
		slog.Int("skipped_podcasts", res.SkippedPodcasts),
		slog.Int("skipped_batches", res.SkippedBatches),
		slog.Duration("duration", res.Duration))
	return res
}

func (p *Pipeline) failed(start time.Time, err error) *RunResult {
	slog.Error("reindex_failed", slog.String("error", err.Error()))
	return &RunResult{
		Outcome:   OutcomeFailed,
		Retryable: errs.IsRetryable(err),
		Duration:  time.Since(start),
		Err:       err,
	}
}

func (p *Pipeline) cancelled(start time.Time, stats *runStats) *RunResult {
	slog.Info("reindex_cancelled",
		slog.Int("podcasts", stats.podcasts),
		slog.Int("episodes", stats.episodes))
	return &RunResult{
		Outcome:         OutcomeCancelled,
		Podcasts:        stats.podcasts,
		Episodes:        stats.episodes,
		SkippedPodcasts: stats.skippedPodcasts,
		SkippedBatches:  stats.skippedBatches,
		Duration:        time.Since(start),
	}
}

func podcastDoc(pc *feed.Podcast) *store.PodcastDoc {
	return &store.PodcastDoc{
		PodcastID:   pc.ID,
		Title:       pc.Title,
		Description: pc.Description,
	}
}

func episodeDoc(podcastID string, ep *feed.Episode) *store.EpisodeDoc {
	return &store.EpisodeDoc{
		EpisodeID:   ep.ID,
		PodcastID:   podcastID,
		Title:       ep.Title,
		Description: ep.Description,
		PubDate:     ep.PubDate,
		AudioURL:    ep.AudioURL,
	}
}

func episodeDocs(podcastID string, episodes []*feed.Episode) []*store.EpisodeDoc {
	docs := make([]*store.EpisodeDoc, 0, len(episodes))
	for _, ep := range episodes {
		if ep == nil || ep.ID == "" {
			continue
		}
		docs = append(docs, episodeDoc(podcastID, ep))
	}
	return docs
}
