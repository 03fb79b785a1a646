// Package ledger provides an append-only journal of panel sessions.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the journal
type EventType string

const (
	EventPanelOpened   EventType = "panel_opened"
	EventPanelClosed   EventType = "panel_closed"
	EventActionApplied EventType = "action_applied"
)

// Entry represents a single event in the journal
type Entry struct {
	ID        int64
	EventType EventType
	Timestamp time.Time
	ChatID    int64
	SessionID string
	Payload   map[string]any
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the journal
func (l *Ledger) Append(ctx context.Context, eventType EventType, chatID int64, sessionID string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO panel_journal (event_type, timestamp, chat_id, session_id, payload) VALUES (?, ?, ?, ?, ?)`,
		string(eventType), l.now().UTC().Unix(), chatID, sessionID, string(payloadJSON),
	)
	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, chat_id, session_id, payload
		FROM panel_journal
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// BySession returns all entries of one panel session in insertion order
func (l *Ledger) BySession(ctx context.Context, sessionID string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, chat_id, session_id, payload
		FROM panel_journal
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountByType returns how many entries of a type were recorded since the given time
func (l *Ledger) CountByType(ctx context.Context, eventType EventType, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM panel_journal WHERE event_type = ? AND timestamp >= ?`,
		string(eventType), since.Unix(),
	).Scan(&n)
	return n, err
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.ExecContext(ctx, `DELETE FROM panel_journal WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &entry.ChatID, &entry.SessionID, &payloadStr)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
