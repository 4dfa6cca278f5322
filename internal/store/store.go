package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	emberrors "github.com/emberboard/emberboard/internal/errors"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Store is the SQLite-backed system of record.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// validateIntegrity checks an existing database file before opening it
// for real. Unlike a derived index, the store holds the only copy of
// the data, so corruption is reported and never auto-cleared.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
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
	return nil
}

// Open opens (creating if needed) the store at path. An empty path
// opens an in-memory store for testing.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, emberrors.StoreError(fmt.Sprintf("create directory for %s", path), err)
		}
		if err := validateIntegrity(path); err != nil {
			return nil, emberrors.New(emberrors.ErrCodeStore,
				fmt.Sprintf("database at %s is damaged", path), err).
				WithSuggestion("restore the database from a backup before retrying")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, emberrors.StoreError("open database", err)
	}

	// Single connection: one writer, and connection-scoped PRAGMAs
	// stay in effect for every query.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores journal params in the DSN, so set
	// them as statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, emberrors.StoreError("set pragma", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, emberrors.StoreError("initialize schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Synonym rules, one row per (locale, from, to)
	CREATE TABLE IF NOT EXISTS synonym_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		locale TEXT NOT NULL,
		from_terms TEXT NOT NULL,
		to_terms TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(locale, from_terms, to_terms)
	);
	CREATE INDEX IF NOT EXISTS idx_synonym_rules_locale
		ON synonym_rules(locale, from_terms, to_terms);

	-- Per-locale revision counters. revision bumps on every rule
	-- mutation; synced_revision trails it until the index catches up.
	CREATE TABLE IF NOT EXISTS synonym_revisions (
		locale TEXT PRIMARY KEY,
		revision INTEGER NOT NULL DEFAULT 0,
		synced_revision INTEGER NOT NULL DEFAULT 0
	);

	-- Forum content
	CREATE TABLE IF NOT EXISTS threads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		locale TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		reply_count INTEGER NOT NULL DEFAULT 0,
		last_post_at TIMESTAMP NOT NULL,
		last_poster TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_locale ON threads(locale);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id INTEGER NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_thread ON posts(thread_id);

	-- Watches. Thread watches carry thread_id, locale watches carry
	-- locale; the unused column keeps its zero value so the UNIQUE
	-- constraint makes subscriptions idempotent.
	CREATE TABLE IF NOT EXISTS watches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		thread_id INTEGER NOT NULL DEFAULT 0,
		locale TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(kind, thread_id, locale, email)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path ("" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// checkOpen returns an error when the store has been closed. Callers
// must hold at least a read lock.
func (s *Store) checkOpen() error {
	if s.closed {
		return emberrors.StoreError("store is closed", nil)
	}
	return nil
}

// begin starts a write transaction.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, emberrors.StoreError("begin transaction", err)
	}
	return tx, nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return emberrors.StoreError("commit transaction", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
