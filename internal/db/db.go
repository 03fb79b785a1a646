// Package db provides the database connection and schema for lightpanel.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema.
// ":memory:" opens a private in-memory database.
func Open(dbPath string) (*DB, error) {
	dsn := dbPath + "?_journal_mode=WAL"
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:") {
		dsn = dbPath
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writes come from several bus workers; a single connection serialises them
	// and keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Panel journal - append-only history of panel lifecycle and applied actions
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS panel_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_journal_type_ts ON panel_journal(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_journal_session ON panel_journal(session_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create panel_journal table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
