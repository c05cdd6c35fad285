package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index contents and last reindex time",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			podcasts, err := a.store.PodcastCount(ctx)
			if err != nil {
				return err
			}
			episodes, err := a.store.EpisodeCount(ctx)
			if err != nil {
				return err
			}
			last, err := a.store.LastReindexTime(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Index:        %s\n", a.cfg.Index.Path)
			fmt.Fprintf(out, "Podcasts:     %d\n", podcasts)
			fmt.Fprintf(out, "Episodes:     %d\n", episodes)
			fmt.Fprintf(out, "Feed sources: %d\n", len(a.cfg.Feeds.Sources))
			if last.IsZero() {
				fmt.Fprintln(out, "Last reindex: never")
			} else {
				fmt.Fprintf(out, "Last reindex: %s\n", last.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
