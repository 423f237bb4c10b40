// Package store persists run checkpoints and chat history in SQLite.
package store

import (
	"database/sql"
	"errors"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned when a run ID has no checkpoint.
var ErrNotFound = errors.New("store: not found")

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL DEFAULT '',
			chat_id TEXT NOT NULL DEFAULT '',
			task TEXT NOT NULL,
			steps TEXT NOT NULL DEFAULT '[]',
			cursor INTEGER NOT NULL DEFAULT 0,
			result TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
