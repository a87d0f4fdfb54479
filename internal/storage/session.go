package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the record does not exist.
var ErrNotFound = errors.New("not found")

// Session is a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ModelURI  string    `json:"model_uri"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateSession creates a new session with a generated ID.
func (db *DB) CreateSession(title, modelURI, strategy string) (*Session, error) {
	return db.CreateSessionWithID(uuid.New().String(), title, modelURI, strategy)
}

// CreateSessionWithID creates a new session with the given ID. Gateway
// clients may name their own sessions, so the ID is caller-chosen here.
func (db *DB) CreateSessionWithID(id, title, modelURI, strategy string) (*Session, error) {
	now := time.Now()

	_, err := db.Exec(
		"INSERT INTO sessions (id, title, model_uri, strategy, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, title, modelURI, strategy, now, now,
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Title:     title,
		ModelURI:  modelURI,
		Strategy:  strategy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetSession fetches a session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session

	err := db.QueryRow(
		"SELECT id, title, model_uri, COALESCE(strategy, ''), created_at, updated_at FROM sessions WHERE id = ?",
		id,
	).Scan(&s.ID, &s.Title, &s.ModelURI, &s.Strategy, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// UpdateSessionTitle renames a session.
func (db *DB) UpdateSessionTitle(id, title string) error {
	now := time.Now()

	result, err := db.Exec(
		"UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?",
		title, now, id,
	)
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

// TouchSession bumps the session's updated_at timestamp. Retention
// cleanup treats updated_at as last activity.
func (db *DB) TouchSession(id string) error {
	result, err := db.Exec(
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		time.Now(), id,
	)
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

// DeleteSession deletes a session. Its messages go with it via the
// foreign key cascade.
func (db *DB) DeleteSession(id string) error {
	result, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
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

// DeleteSessionsIdleSince deletes sessions with no activity since cutoff
// and returns how many were removed.
func (db *DB) DeleteSessionsIdleSince(cutoff time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ListSessions lists sessions ordered by most recent activity.
func (db *DB) ListSessions(limit, offset int) ([]*Session, error) {
	query := "SELECT id, title, model_uri, COALESCE(strategy, ''), created_at, updated_at FROM sessions ORDER BY updated_at DESC"
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session

		if err := rows.Scan(&s.ID, &s.Title, &s.ModelURI, &s.Strategy, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}

		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}
