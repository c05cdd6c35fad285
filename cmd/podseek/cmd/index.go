package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/podseek/podseek/internal/index"
)

const timeRound = 10 * time.Millisecond

// NewIndexCmd creates the index command.
func NewIndexCmd() *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the search index from configured feeds",
		Long: `Fetches every configured feed and writes podcast and episode rows
into the local index.

By default the index is rebuilt from scratch. With --incremental only
episodes not yet indexed are added; existing rows are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, incremental)
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "Add new episodes only instead of rebuilding")
	return cmd
}

func runIndex(cmd *cobra.Command, incremental bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Feeds.Sources) == 0 {
		return fmt.Errorf("no feed sources configured; add feeds.sources to %s", configPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := func(processed, total int) {
		fmt.Fprintf(cmd.OutOrStdout(), "\rIndexing podcasts: %d/%d", processed, total)
	}

	var res *index.RunResult
	if incremental {
		res, err = a.runner.RunIncremental(ctx, progress)
	} else {
		res, err = a.runner.RunFull(ctx, progress)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())

	switch res.Outcome {
	case index.OutcomeCompleted:
		fmt.Fprintf(cmd.OutOrStdout(),
			"Done: %d podcasts, %d episodes indexed in %s",
			res.Podcasts, res.Episodes, res.Duration.Round(timeRound))
		if res.SkippedPodcasts > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d podcasts skipped)", res.SkippedPodcasts)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	case index.OutcomeCancelled:
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled; committed batches were kept.")
		return nil
	default:
		return fmt.Errorf("indexing failed: %w", res.Err)
	}
}
