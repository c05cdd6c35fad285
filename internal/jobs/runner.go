// Package jobs decides when pipeline runs execute. It collapses
// concurrent triggers of the same mode into one run, retries retryable
// failures with backoff, and remembers the last outcome for status
// reporting. The pipeline itself never retries; that policy lives here.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	errs "github.com/podseek/podseek/internal/errors"
	"github.com/podseek/podseek/internal/index"
)

// Invalidator is notified after a run that may have changed the index.
// The search layer implements it to drop cached results.
type Invalidator interface {
	Invalidate()
}

// Config contains job-runner tuning options.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns the default job-runner configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// LastRun is the recorded outcome of the most recent run.
type LastRun struct {
	Mode     string
	Result   *index.RunResult
	Finished time.Time
}

// Runner triggers the pipeline on demand. At most one run is in flight
// per index regardless of mode; overlapping triggers join the running
// one and all receive its result.
type Runner struct {
	pipeline    *index.Pipeline
	invalidator Invalidator
	retry       errs.RetryConfig

	group singleflight.Group

	mu   sync.Mutex
	last *LastRun
}

// NewRunner creates a runner over a pipeline. invalidator may be nil.
func NewRunner(p *index.Pipeline, invalidator Invalidator, config Config) *Runner {
	if config.MaxRetries < 0 {
		config = DefaultConfig()
	}
	return &Runner{
		pipeline:    p,
		invalidator: invalidator,
		retry: errs.RetryConfig{
			MaxRetries:   config.MaxRetries,
			InitialDelay: config.InitialDelay,
			MaxDelay:     config.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// RunFull triggers a full reindex, joining any run already in flight.
func (r *Runner) RunFull(ctx context.Context, progress index.Progress) (*index.RunResult, error) {
	return r.run(ctx, "full", progress, r.pipeline.RunFull)
}

// RunIncremental triggers an incremental reindex, joining any run
// already in flight.
func (r *Runner) RunIncremental(ctx context.Context, progress index.Progress) (*index.RunResult, error) {
	return r.run(ctx, "incremental", progress, r.pipeline.RunIncremental)
}

// Last returns the most recent recorded run, or nil before the first.
func (r *Runner) Last() *LastRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type runFunc func(ctx context.Context, progress index.Progress) *index.RunResult

func (r *Runner) run(ctx context.Context, mode string, progress index.Progress, fn runFunc) (*index.RunResult, error) {
	// One key for both modes: a trigger arriving while any run is in
	// flight joins it rather than starting a second writer.
	v, err, shared := r.group.Do("reindex", func() (any, error) {
		res := r.runWithRetry(ctx, mode, progress, fn)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("run_joined", slog.String("mode", mode))
	}
	return v.(*index.RunResult), nil
}

// runWithRetry executes one run and replays it with backoff while the
// outcome is a retryable failure. Cancelled and completed runs are
// terminal; so is a non-retryable failure.
func (r *Runner) runWithRetry(ctx context.Context, mode string, progress index.Progress, fn runFunc) *index.RunResult {
	var res *index.RunResult

	err := errs.Retry(ctx, r.retry, func() error {
		res = fn(ctx, progress)
		if res.Outcome == index.OutcomeFailed && res.Retryable {
			slog.Warn("run_retry_scheduled",
				slog.String("mode", mode),
				slog.String("error", res.Err.Error()))
			return res.Err
		}
		return nil
	})
	if err != nil && res == nil {
		// Context cancelled before the first attempt.
		res = &index.RunResult{Outcome: index.OutcomeCancelled, Err: err}
	}

	if r.invalidator != nil && res.Outcome != index.OutcomeFailed {
		r.invalidator.Invalidate()
	}

	r.mu.Lock()
	r.last = &LastRun{Mode: mode, Result: res, Finished: time.Now()}
	r.mu.Unlock()
	return res
}
