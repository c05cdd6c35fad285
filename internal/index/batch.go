package index

import (
	"context"
	"log/slog"
	"runtime"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/store"
)

// batchSizeFor picks the batch size from the episode count tier.
func (p *Pipeline) batchSizeFor(total int) int {
	switch {
	case total <= p.config.SmallThreshold:
		return p.config.SmallBatch
	case total <= p.config.MediumThreshold:
		return p.config.MediumBatch
	default:
		return p.config.LargeBatch
	}
}

// writeEpisodes commits docs in bounded batches, calling afterBatch once
// per committed batch and yielding between batches so interleaved
// readers are not starved. A failed batch is retried at recovery
// granularity; sub-batches that still fail are logged and skipped, the
// episodes absent until the next run.
func (p *Pipeline) writeEpisodes(ctx context.Context, docs []*store.EpisodeDoc, stats *runStats, afterBatch func()) {
	if len(docs) == 0 {
		return
	}

	size := p.batchSizeFor(len(docs))
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batch := docs[start:end]

		n, err := p.store.AppendEpisodesBatch(ctx, batch, p.config.MaxFieldLength)
		if err != nil {
			n = p.retrySmaller(ctx, batch, stats, err)
		}
		stats.episodes += n

		afterBatch()
		runtime.Gosched()
	}
}

// retrySmaller replays a failed batch in sub-batches of RecoveryBatch
// rows. Out-of-memory conditions in particular tend to clear at the
// reduced transaction size. Returns the count written.
func (p *Pipeline) retrySmaller(ctx context.Context, batch []*store.EpisodeDoc, stats *runStats, cause error) int {
	slog.Warn("batch_retry_smaller",
		slog.Int("batch_size", len(batch)),
		slog.Int("recovery_size", p.config.RecoveryBatch),
		slog.String("error", cause.Error()))

	written := 0
	size := p.config.RecoveryBatch
	if size <= 0 {
		size = DefaultConfig().RecoveryBatch
	}

	for start := 0; start < len(batch); start += size {
		end := min(start+size, len(batch))
		sub := batch[start:end]

		n, err := p.store.AppendEpisodesBatch(ctx, sub, p.config.MaxFieldLength)
		if err != nil {
			slog.Warn("batch_skipped",
				slog.Int("size", len(sub)),
				slog.String("code", errs.GetCode(err)),
				slog.String("error", err.Error()))
			stats.skippedBatches++
			continue
		}
		written += n
	}
	return written
}
