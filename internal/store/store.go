// Package store implements the SQLite-backed memory layer: conversations,
// messages with full-text recall, facts, scheduled tasks, outcomes,
// lessons, aliases, limitations, provider sessions, and the audit log.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/omegacorp/omega/internal/logging"
)

const logComponent = "store"

// Store wraps the SQLite connection pool and exposes one method per
// memory operation. All timestamps are persisted as RFC3339 strings in
// UTC and parsed back on read.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL journaling and foreign keys, and runs any pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers regardless; a small pool avoids
	// "database is locked" thrash under concurrent readers.
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return err
	}

	if err := s.bootstrapPreTracking(); err != nil {
		return err
	}

	applied := make(map[string]bool)
	rows, err := s.db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		logging.InfoCF(logComponent, "applied migration", map[string]interface{}{"name": m.Name})
	}
	return nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`,
		m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// bootstrapPreTracking handles databases created before schema_migrations
// existed: if the tracking table is empty but conversations is already a
// real table, the first three migrations (init/messages/fts) are already
// satisfied and are marked applied without re-running their SQL, since
// 003_fts's CREATE TRIGGER would otherwise collide with live data.
func (s *Store) bootstrapPreTracking() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='conversations'`).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, name := range []string{"001_init", "002_messages", "003_fts"} {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_migrations(name, applied_at) VALUES (?, ?)`, name, now); err != nil {
			return err
		}
	}
	logging.InfoCF(logComponent, "bootstrapped pre-tracking schema", nil)
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func nullableTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func timePtrToNullable(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
