package cmd

import (
	"github.com/podseek/podseek/internal/config"
	"github.com/podseek/podseek/internal/feed"
	"github.com/podseek/podseek/internal/index"
	"github.com/podseek/podseek/internal/jobs"
	"github.com/podseek/podseek/internal/search"
	"github.com/podseek/podseek/internal/store"
)

// app wires the store, feed source, pipeline, job runner, and search
// service from one loaded config. Commands open it for the duration of
// one invocation and close it on the way out.
type app struct {
	cfg     *config.Config
	store   *store.Store
	service *search.Service
	runner  *jobs.Runner
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Index.Path, store.Config{
		CacheMB:        cfg.Index.CacheMB,
		MaxTitleLength: cfg.Index.MaxTitleLength,
	})
	if err != nil {
		return nil, err
	}

	service, err := search.NewService(st, search.Config{
		PodcastLimit: cfg.Search.PodcastLimit,
		EpisodeLimit: cfg.Search.EpisodeLimit,
		Exhaustive:   cfg.Search.Exhaustive,
		CacheSize:    cfg.Search.CacheSize,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	source := feed.NewRSSSource(cfg.Feeds.Sources, cfg.Feeds.Timeout)
	pipeline := index.NewPipeline(st, source, index.Config{
		SmallBatch:      cfg.Pipeline.SmallBatch,
		MediumBatch:     cfg.Pipeline.MediumBatch,
		LargeBatch:      cfg.Pipeline.LargeBatch,
		SmallThreshold:  cfg.Pipeline.SmallThreshold,
		MediumThreshold: cfg.Pipeline.MediumThreshold,
		RecoveryBatch:   cfg.Pipeline.RecoveryBatch,
		MaxFieldLength:  cfg.Index.MaxFieldLength,
	})
	runner := jobs.NewRunner(pipeline, service, jobs.Config{
		MaxRetries:   cfg.Jobs.MaxRetries,
		InitialDelay: cfg.Jobs.InitialDelay,
		MaxDelay:     cfg.Jobs.MaxDelay,
	})

	return &app{cfg: cfg, store: st, service: service, runner: runner}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}
