package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message is a stored transcript row. ToolCalls and Metadata hold the
// JSON produced by the conversation layer; storage does not interpret
// either.
type Message struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        json.RawMessage `json:"tool_calls,omitempty"`
	Refusal          string          `json:"refusal,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertMessage(e execer, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := e.Exec(
		"INSERT INTO messages (id, session_id, role, content, reasoning_content, tool_calls, refusal, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.SessionID, m.Role, m.Content,
		nullable(m.ReasoningContent), nullableJSON(m.ToolCalls),
		nullable(m.Refusal), nullableJSON(m.Metadata), m.CreatedAt,
	)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// AppendMessage stores a message. An empty ID or zero CreatedAt is
// filled in; the session's updated_at is bumped.
func (db *DB) AppendMessage(m *Message) (*Message, error) {
	if err := insertMessage(db, m); err != nil {
		return nil, err
	}

	_, _ = db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), m.SessionID)

	return m, nil
}

// GetMessages returns a session's messages in transcript order.
func (db *DB) GetMessages(sessionID string, limit int) ([]*Message, error) {
	// rowid breaks ties between rows written in the same transaction.
	query := "SELECT id, session_id, role, content, reasoning_content, tool_calls, refusal, metadata, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC"
	args := []any{sessionID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var reasoning, toolCalls, refusal, metadata sql.NullString

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &reasoning, &toolCalls, &refusal, &metadata, &m.CreatedAt); err != nil {
			return nil, err
		}

		if reasoning.Valid {
			m.ReasoningContent = reasoning.String
		}
		if toolCalls.Valid {
			m.ToolCalls = json.RawMessage(toolCalls.String)
		}
		if refusal.Valid {
			m.Refusal = refusal.String
		}
		if metadata.Valid {
			m.Metadata = json.RawMessage(metadata.String)
		}

		messages = append(messages, &m)
	}

	return messages, rows.Err()
}

// GetMessage fetches a single message by ID.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	var reasoning, toolCalls, refusal, metadata sql.NullString

	err := db.QueryRow(
		"SELECT id, session_id, role, content, reasoning_content, tool_calls, refusal, metadata, created_at FROM messages WHERE id = ?",
		id,
	).Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &reasoning, &toolCalls, &refusal, &metadata, &m.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if reasoning.Valid {
		m.ReasoningContent = reasoning.String
	}
	if toolCalls.Valid {
		m.ToolCalls = json.RawMessage(toolCalls.String)
	}
	if refusal.Valid {
		m.Refusal = refusal.String
	}
	if metadata.Valid {
		m.Metadata = json.RawMessage(metadata.String)
	}

	return &m, nil
}

// DeleteMessage deletes a message.
func (db *DB) DeleteMessage(id string) error {
	result, err := db.Exec("DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// CountMessages counts a session's messages.
func (db *DB) CountMessages(sessionID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

// ReplaceMessages atomically swaps a session's transcript for a new one.
// After compaction rewrites the in-memory log, the stored copy must
// match it exactly, so the old rows are deleted and the new ones
// inserted in a single transaction.
func (db *DB) ReplaceMessages(sessionID string, messages []*Message) error {
	return db.WithTx(func(tx *Tx) error {
		if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
			return err
		}

		for _, msg := range messages {
			msg.SessionID = sessionID
			if err := insertMessage(tx, msg); err != nil {
				return err
			}
		}

		_, _ = tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), sessionID)
		return nil
	})
}
