// Package config loads and validates podseek configuration from YAML with
// PODSEEK_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete podseek configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Feeds    FeedsConfig    `yaml:"feeds" json:"feeds"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Jobs     JobsConfig     `yaml:"jobs" json:"jobs"`
	LogLevel string         `yaml:"log_level" json:"log_level"`
}

// IndexConfig configures the on-disk index store.
type IndexConfig struct {
	// Path is the SQLite index file. Empty means DefaultIndexPath().
	Path string `yaml:"path" json:"path"`

	// MaxFieldLength bounds the description portion of the episode search
	// blob, in runes.
	MaxFieldLength int `yaml:"max_field_length" json:"max_field_length"`

	// MaxTitleLength bounds the stored episode title, in runes.
	MaxTitleLength int `yaml:"max_title_length" json:"max_title_length"`

	// CacheMB is the SQLite page cache size in MB.
	CacheMB int `yaml:"cache_mb" json:"cache_mb"`
}

// FeedsConfig configures the RSS data source.
type FeedsConfig struct {
	// Sources is the list of podcast feed URLs to index.
	Sources []string `yaml:"sources" json:"sources"`

	// Timeout bounds each feed fetch.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// PipelineConfig configures indexing-run batching. Batch size is chosen by
// total episode count per podcast: small catalogs use small transactions,
// large catalogs amortize transaction overhead with bigger ones.
type PipelineConfig struct {
	SmallBatch      int `yaml:"small_batch" json:"small_batch"`
	MediumBatch     int `yaml:"medium_batch" json:"medium_batch"`
	LargeBatch      int `yaml:"large_batch" json:"large_batch"`
	SmallThreshold  int `yaml:"small_threshold" json:"small_threshold"`
	MediumThreshold int `yaml:"medium_threshold" json:"medium_threshold"`

	// RecoveryBatch is the sub-batch size used when a batch write fails
	// with an out-of-memory condition.
	RecoveryBatch int `yaml:"recovery_batch" json:"recovery_batch"`
}

// SearchConfig configures the query-serving layer.
type SearchConfig struct {
	// PodcastLimit is the default result cap for podcast searches.
	PodcastLimit int `yaml:"podcast_limit" json:"podcast_limit"`

	// EpisodeLimit is the default result cap for episode searches.
	EpisodeLimit int `yaml:"episode_limit" json:"episode_limit"`

	// Exhaustive evaluates all fallback query variants instead of the
	// first two. Slower on misses; higher recall.
	Exhaustive bool `yaml:"exhaustive" json:"exhaustive"`

	// CacheSize is the per-kind LRU result cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// JobsConfig configures the job runner's retry policy for failed runs.
type JobsConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultIndexPath returns the default index location (~/.podseek/index.db).
func DefaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".podseek", "index.db")
	}
	return filepath.Join(home, ".podseek", "index.db")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Path:           DefaultIndexPath(),
			MaxFieldLength: 4096,
			MaxTitleLength: 512,
			CacheMB:        64,
		},
		Feeds: FeedsConfig{
			Sources: nil,
			Timeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			SmallBatch:      100,
			MediumBatch:     500,
			LargeBatch:      1500,
			SmallThreshold:  500,
			MediumThreshold: 5000,
			RecoveryBatch:   50,
		},
		Search: SearchConfig{
			PodcastLimit: 50,
			EpisodeLimit: 100,
			Exhaustive:   false,
			CacheSize:    256,
		},
		Jobs: JobsConfig{
			MaxRetries:   3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     60 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads configuration with the following precedence:
//  1. Defaults
//  2. YAML file at path (skipped when path is empty or missing)
//  3. Environment variables (PODSEEK_*)
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file falls back to defaults.
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies PODSEEK_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PODSEEK_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("PODSEEK_MAX_FIELD_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.MaxFieldLength = n
		}
	}
	if v := os.Getenv("PODSEEK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PODSEEK_SEARCH_EXHAUSTIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Search.Exhaustive = b
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Index.MaxFieldLength <= 0 {
		return fmt.Errorf("index.max_field_length must be positive, got %d", c.Index.MaxFieldLength)
	}
	if c.Index.MaxTitleLength <= 0 {
		return fmt.Errorf("index.max_title_length must be positive, got %d", c.Index.MaxTitleLength)
	}
	if c.Pipeline.SmallBatch <= 0 || c.Pipeline.MediumBatch <= 0 || c.Pipeline.LargeBatch <= 0 {
		return fmt.Errorf("pipeline batch sizes must be positive")
	}
	if c.Pipeline.SmallThreshold >= c.Pipeline.MediumThreshold {
		return fmt.Errorf("pipeline.small_threshold (%d) must be below medium_threshold (%d)",
			c.Pipeline.SmallThreshold, c.Pipeline.MediumThreshold)
	}
	if c.Pipeline.RecoveryBatch <= 0 {
		return fmt.Errorf("pipeline.recovery_batch must be positive, got %d", c.Pipeline.RecoveryBatch)
	}
	if c.Search.PodcastLimit <= 0 || c.Search.EpisodeLimit <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("jobs.max_retries must not be negative, got %d", c.Jobs.MaxRetries)
	}
	return nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
