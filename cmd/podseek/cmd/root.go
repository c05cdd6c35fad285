// Package cmd provides the CLI commands for podseek.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/podseek/podseek/internal/config"
	"github.com/podseek/podseek/internal/logging"
	"github.com/podseek/podseek/pkg/version"
)

var (
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// DefaultConfigPath returns ~/.podseek/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".podseek", "config.yaml")
	}
	return filepath.Join(home, ".podseek", "config.yaml")
}

// NewRootCmd creates the root command for the podseek CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "podseek",
		Short: "Local full-text search over podcast and episode metadata",
		Long: `podseek indexes podcast and episode metadata from RSS feeds into a
local full-text index and answers phrase, proximity, and prefix queries
against it.

Run 'podseek index' to build the index, then 'podseek search <query>'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("podseek version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath(), "Config file path")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.podseek/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(
		NewIndexCmd(),
		NewSearchCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)
	return cmd
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if debugMode {
		level = "debug"
	}

	cleanup, err := logging.SetupDefault(level)
	if err != nil {
		// Logging is best effort; the CLI still works without a log file.
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(cmd *cobra.Command, args []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
