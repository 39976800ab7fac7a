package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mtzanidakis/skopos/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id          TEXT PRIMARY KEY,
			url         TEXT NOT NULL,
			user_id     TEXT,
			industry    TEXT,
			success     BOOLEAN DEFAULT FALSE,
			score       INTEGER DEFAULT 0,
			summary     TEXT,
			errors      TEXT,
			duration_ms INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_url ON analyses(url, created_at)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id TEXT NOT NULL REFERENCES analyses(id),
			agent_id    TEXT NOT NULL,
			agent_name  TEXT,
			content     TEXT NOT NULL,
			category    TEXT,
			priority    TEXT,
			data        TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_analysis ON insights(analysis_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id              TEXT PRIMARY KEY,
			url             TEXT NOT NULL,
			competitor_urls TEXT,
			industry        TEXT,
			schedule        TEXT NOT NULL,
			status          TEXT DEFAULT 'active',
			next_run_at     DATETIME,
			last_run_at     DATETIME,
			last_status     TEXT,
			last_error      TEXT,
			last_score      INTEGER DEFAULT 0,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_next_run ON scans(status, next_run_at)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			urls         TEXT NOT NULL,
			industry     TEXT,
			status       TEXT DEFAULT 'pending',
			total        INTEGER DEFAULT 0,
			completed    INTEGER DEFAULT 0,
			failed       INTEGER DEFAULT 0,
			results      TEXT,
			error        TEXT,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at   DATETIME,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_pending ON jobs(status, created_at)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			id          TEXT PRIMARY KEY,
			host        TEXT NOT NULL UNIQUE,
			username    TEXT NOT NULL,
			value       BLOB NOT NULL,
			nonce       BLOB NOT NULL,
			description TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
