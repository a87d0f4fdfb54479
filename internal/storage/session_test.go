package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCreateSession(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	session, err := db.CreateSession("first chat", "deepseek/deepseek-chat", "summarize")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.ID == "" {
		t.Error("session ID should not be empty")
	}
	if session.ModelURI != "deepseek/deepseek-chat" {
		t.Errorf("ModelURI = %q", session.ModelURI)
	}
}

func TestCreateSessionWithID(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	session, err := db.CreateSessionWithID("client-chosen", "", "", "")
	if err != nil {
		t.Fatalf("CreateSessionWithID failed: %v", err)
	}
	if session.ID != "client-chosen" {
		t.Errorf("ID = %q, want client-chosen", session.ID)
	}
}

func TestGetSession(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	created, _ := db.CreateSession("", "openai/gpt-4o", "fifo")
	got, err := db.GetSession(created.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID mismatch")
	}
	if got.Strategy != "fifo" {
		t.Errorf("Strategy = %q, want fifo", got.Strategy)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	_, err := db.GetSession("nonexistent")
	if err != ErrNotFound {
		t.Errorf("want ErrNotFound")
	}
}

func TestUpdateSessionTitle(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	session, _ := db.CreateSession("", "", "")
	if err := db.UpdateSessionTitle(session.ID, "renamed"); err != nil {
		t.Fatalf("UpdateSessionTitle failed: %v", err)
	}

	got, _ := db.GetSession(session.ID)
	if got.Title != "renamed" {
		t.Errorf("Title = %q, want renamed", got.Title)
	}
}

func TestTouchSession(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	session, _ := db.CreateSession("", "", "")

	time.Sleep(10 * time.Millisecond)
	if err := db.TouchSession(session.ID); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}

	got, _ := db.GetSession(session.ID)
	if !got.UpdatedAt.After(session.UpdatedAt) {
		t.Error("updated_at should advance on touch")
	}

	if err := db.TouchSession("nonexistent"); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	session, _ := db.CreateSession("", "", "")
	if err := db.DeleteSession(session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	_, err := db.GetSession(session.ID)
	if err != ErrNotFound {
		t.Error("session should be deleted")
	}
}

func TestDeleteSessionsIdleSince(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	stale, _ := db.CreateSession("stale", "", "")
	fresh, _ := db.CreateSession("fresh", "", "")

	// Age the first session artificially.
	old := time.Now().Add(-48 * time.Hour)
	if _, err := db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", old, stale.ID); err != nil {
		t.Fatalf("age session: %v", err)
	}

	deleted, err := db.DeleteSessionsIdleSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteSessionsIdleSince failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := db.GetSession(stale.ID); err != ErrNotFound {
		t.Error("stale session should be gone")
	}
	if _, err := db.GetSession(fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
}

func TestListSessions(t *testing.T) {
	tmpDir := t.TempDir()
	db, _ := Open(filepath.Join(tmpDir, "test.db"))
	defer db.Close()

	for i := 0; i < 3; i++ {
		_, _ = db.CreateSession("", "", "")
	}

	sessions, err := db.ListSessions(2, 0)
	if err != nil || len(sessions) != 2 {
		t.Errorf("ListSessions failed")
	}
}
