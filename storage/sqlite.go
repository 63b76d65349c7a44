// Package storage provides SQLite snapshot storage.
//
// Information Hiding:
// - SQLite connection management hidden behind SnapshotBackend
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteBackend stores one snapshot row per conversation id.
type SqliteBackend struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteBackend, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteBackend(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteBackend, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteBackend(db)
}

func newSqliteBackend(db *sql.DB) (*SqliteBackend, error) {
	b := &SqliteBackend{db: db}
	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

// Close closes the database connection.
func (b *SqliteBackend) Close() error {
	return b.db.Close()
}

func (b *SqliteBackend) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			conversation_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			byte_size INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_updated
		ON snapshots(updated_at DESC);
	`

	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load returns the snapshot row for id.
func (b *SqliteBackend) Load(ctx context.Context, id string) ([]byte, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidID
	}
	var payload []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT payload FROM snapshots WHERE conversation_id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return payload, true, nil
}

// Save upserts the snapshot row for id. A single statement is atomic.
func (b *SqliteBackend) Save(ctx context.Context, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO snapshots (conversation_id, payload, byte_size, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(conversation_id) DO UPDATE SET
			payload = excluded.payload,
			byte_size = excluded.byte_size,
			updated_at = excluded.updated_at`,
		id, data, len(data))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot row for id.
func (b *SqliteBackend) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if _, err := b.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns conversation ids, most recently updated first.
func (b *SqliteBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT conversation_id FROM snapshots ORDER BY updated_at DESC, conversation_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return ids, nil
}

var _ SnapshotBackend = (*SqliteBackend)(nil)
