package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	errs "github.com/podseek/podseek/internal/errors"
)

// Config contains store tuning options.
type Config struct {
	// CacheMB is the SQLite page cache size in MB (default 64).
	CacheMB int

	// MaxTitleLength bounds stored episode titles in runes (default 512).
	MaxTitleLength int
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		CacheMB:        64,
		MaxTitleLength: DefaultMaxTitleLength,
	}
}

// Store owns the persisted inverted-index structure for podcasts and
// episodes. A single mutex guards every entry point: writer transactions
// are mutually exclusive, and concurrent search calls are serialized so
// one logical query's fallback variants never interleave with another's.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	config Config
	lock   *flock.Flock
	closed bool
}

// validateIntegrity checks whether an existing index file is usable before
// opening it for real. Returns nil when the file is absent or healthy.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name IN ('podcast_fts', 'episode_fts')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count > 0 && count < 2 {
		return fmt.Errorf("index tables incomplete")
	}

	return nil
}

// Open opens or creates the index at path. If path is empty, an in-memory
// index is created (used by tests). A sidecar flock guarantees a single
// writer process; corrupted index files are removed and rebuilt empty.
func Open(path string, config Config) (*Store, error) {
	if config.CacheMB <= 0 {
		config.CacheMB = 64
	}
	if config.MaxTitleLength <= 0 {
		config.MaxTitleLength = DefaultMaxTitleLength
	}

	var dsn string
	var fileLock *flock.Flock
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.New(errs.ErrCodeIndexOpen,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}

		fileLock = flock.New(path + ".lock")
		acquired, err := fileLock.TryLock()
		if err != nil {
			return nil, errs.New(errs.ErrCodeIndexLocked, "failed to acquire index lock", err)
		}
		if !acquired {
			return nil, errs.New(errs.ErrCodeIndexLocked,
				fmt.Sprintf("index %s is locked by another process", path), nil)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				_ = fileLock.Unlock()
				return nil, errs.New(errs.ErrCodeIndexCorrupt,
					fmt.Sprintf("index corrupted at %s and cannot remove", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if fileLock != nil {
			_ = fileLock.Unlock()
		}
		return nil, errs.New(errs.ErrCodeIndexOpen, "failed to open database", err)
	}

	// Single connection: one writer, and :memory: databases are per-conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite; DSN params may be ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", config.CacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if fileLock != nil {
				_ = fileLock.Unlock()
			}
			return nil, errs.New(errs.ErrCodeIndexOpen, "failed to set pragma", err)
		}
	}

	s := &Store{
		db:     db,
		path:   path,
		config: config,
		lock:   fileLock,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if fileLock != nil {
			_ = fileLock.Unlock()
		}
		return nil, errs.New(errs.ErrCodeIndexOpen, "failed to initialize schema", err)
	}

	return s, nil
}

// initSchema creates the FTS5 virtual tables and supporting tables.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Podcast inverted index. podcast_id is stored but not searchable.
	CREATE VIRTUAL TABLE IF NOT EXISTS podcast_fts USING fts5(
		podcast_id UNINDEXED,
		title,
		description,
		tokenize='unicode61'
	);

	-- Keyed lookups: FTS5 tables cannot answer existence checks without
	-- a full scan, so ids live in plain tables with real indexes.
	CREATE TABLE IF NOT EXISTS podcast_ids (
		podcast_id TEXT PRIMARY KEY
	);

	-- Episode inverted index. The search blob is the synthesized,
	-- normalized text actually searched; title is kept for display.
	CREATE VIRTUAL TABLE IF NOT EXISTS episode_fts USING fts5(
		episode_id UNINDEXED,
		podcast_id UNINDEXED,
		title,
		search_blob,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS episode_ids (
		episode_id TEXT PRIMARY KEY,
		podcast_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_episode_ids_podcast ON episode_ids(podcast_id);

	CREATE TABLE IF NOT EXISTS engine_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the index and releases the writer lock. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	var err error
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		err = s.db.Close()
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// errClosed is returned by operations on a closed store.
func (s *Store) errClosed() error {
	return errs.New(errs.ErrCodeIndexClosed, "index is closed", nil)
}

// IsMemoryError reports whether err is an out-of-memory condition from the
// storage engine. The pipeline retries such batches at a smaller size.
func IsMemoryError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*errs.Error); ok && e.Code == errs.ErrCodeOutOfMemory {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") || strings.Contains(msg, "nomem")
}

// isFTSSyntaxError reports whether err is FTS5 rejecting a match
// expression. Malformed queries degrade to empty results.
func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.ErrCodeWriteFailed, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.ErrCodeWriteFailed, "failed to commit transaction", err)
	}
	return nil
}
