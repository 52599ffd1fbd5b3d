// Package database is the local SQLite store: the sqlite-backed session
// credential and the journal of likes and comments sent to the server.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"techpost/internal/database/migrations"
	"techpost/internal/engage"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Action statuses recorded in the journal.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Action is one journaled like or comment.
type Action struct {
	ID         int64
	Kind       string
	PostID     int64
	Status     string
	Detail     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// SQLiteDatabase stores credentials and the action journal in SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock engage.Clock
}

var _ engage.Journal = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path, creating its directory, and
// migrates it to the latest schema. path can be ":memory:". A nil clock
// selects the real clock.
func NewSQLiteDatabase(path string, clock engage.Clock) (*SQLiteDatabase, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	if clock == nil {
		clock = engage.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// The pool is limited to one connection: each connection to ":memory:" is a
// separate database, and a CLI process never needs more.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Credentials

// LoadCredential returns the sealed value stored under key, or nil if there is none.
func (s *SQLiteDatabase) LoadCredential(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading credential %q: %w", key, err)
	}
	return value, nil
}

// SaveCredential stores value under key, replacing any earlier value.
func (s *SQLiteDatabase) SaveCredential(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, stored_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at`,
		key, value, s.clock.Now())
	if err != nil {
		return fmt.Errorf("saving credential %q: %w", key, err)
	}
	return nil
}

// DeleteCredential removes key. Deleting a missing key is not an error.
func (s *SQLiteDatabase) DeleteCredential(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Action journal

// StartAction records a running action and returns its ID.
func (s *SQLiteDatabase) StartAction(kind string, postID int64) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO actions (kind, post_id, status, started_at) VALUES (?, ?, ?, ?)",
		kind, postID, StatusRunning, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("creating action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading action id: %w", err)
	}
	return id, nil
}

// FinishAction records the outcome of a started action.
func (s *SQLiteDatabase) FinishAction(id int64, status, detail string) error {
	res, err := s.db.Exec(
		"UPDATE actions SET status = ?, detail = ?, finished_at = ? WHERE id = ?",
		status, detail, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("finishing action %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing action %d: no such action", id)
	}
	return nil
}

// ListActions returns up to limit actions, newest first.
func (s *SQLiteDatabase) ListActions(limit int) ([]*Action, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, post_id, status, detail, started_at, finished_at
		FROM actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		var (
			a        Action
			finished sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Kind, &a.PostID, &a.Status, &a.Detail, &a.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			a.FinishedAt = &t
		}
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	return actions, nil
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// ExportJournal writes a copy of the database to destPath with the stored
// credentials removed, so the action journal can be shared. destPath must
// not exist.
func (s *SQLiteDatabase) ExportJournal(destPath string) error {
	if err := s.BackupTo(destPath); err != nil {
		return err
	}

	db, err := OpenConnection(destPath)
	if err != nil {
		return fmt.Errorf("opening export: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("removing credentials from export: %w", err)
	}
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("compacting export: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
