package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/podseek/podseek/internal/search"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var episodesOnly bool
	var podcastsOnly bool
	var limit int
	var exhaustive bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed podcasts and episodes",
		Long: `Searches the local index. Multi-word queries try an exact phrase
first, then fall back to more permissive matching.

--exhaustive evaluates every fallback variant instead of the first two;
slower on misses, higher recall.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := searchOptions{
				podcastsOnly: podcastsOnly,
				episodesOnly: episodesOnly,
			}
			if cmd.Flags().Changed("limit") {
				opts.limit = limit
			}
			if cmd.Flags().Changed("exhaustive") {
				opts.exhaustive = &exhaustive
			}
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVar(&podcastsOnly, "podcasts", false, "Search podcasts only")
	cmd.Flags().BoolVar(&episodesOnly, "episodes", false, "Search episodes only")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results per kind (default from config)")
	cmd.Flags().BoolVar(&exhaustive, "exhaustive", false, "Evaluate every fallback variant")
	return cmd
}

// searchOptions carries per-invocation overrides of the configured
// search behavior. Zero limit and nil exhaustive mean "use the config".
type searchOptions struct {
	podcastsOnly bool
	episodesOnly bool
	limit        int
	exhaustive   *bool
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc := a.service
	if opts.limit > 0 || opts.exhaustive != nil {
		cfg := search.Config{
			PodcastLimit: a.cfg.Search.PodcastLimit,
			EpisodeLimit: a.cfg.Search.EpisodeLimit,
			Exhaustive:   a.cfg.Search.Exhaustive,
			CacheSize:    a.cfg.Search.CacheSize,
		}
		if opts.limit > 0 {
			cfg.PodcastLimit = opts.limit
			cfg.EpisodeLimit = opts.limit
		}
		if opts.exhaustive != nil {
			cfg.Exhaustive = *opts.exhaustive
		}
		svc, err = search.NewService(a.store, cfg)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	found := false

	if !opts.episodesOnly {
		for _, hit := range svc.SearchPodcasts(ctx, query) {
			found = true
			fmt.Fprintf(out, "podcast  %s  %s\n", hit.PodcastID, hit.Title)
		}
	}
	if !opts.podcastsOnly {
		for _, hit := range svc.SearchEpisodes(ctx, query) {
			found = true
			fmt.Fprintf(out, "episode  %s  %s\n", hit.EpisodeID, hit.Title)
		}
	}

	if !found {
		fmt.Fprintln(out, "No results.")
	}
	return nil
}
