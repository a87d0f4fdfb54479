package cron

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"parley/internal/config"
	"parley/internal/storage"
)

// setupSchedulerTest creates test dependencies for scheduler tests.
func setupSchedulerTest(t *testing.T, retentionDays int, schedule string) (*Scheduler, *storage.DB) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Storage: config.StorageConfig{
			RetentionDays:   retentionDays,
			CleanupSchedule: schedule,
		},
	}

	return NewScheduler(db, cfg), db
}

func TestSchedulerStartStop(t *testing.T) {
	scheduler, _ := setupSchedulerTest(t, 30, "0 3 * * *")

	ctx := context.Background()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Start again should fail
	if err := scheduler.Start(ctx); err == nil {
		t.Error("expected error starting already running scheduler")
	}

	scheduler.Stop()

	// Stop again should be idempotent
	scheduler.Stop()
}

func TestSchedulerRegistersRetentionJob(t *testing.T) {
	scheduler, _ := setupSchedulerTest(t, 30, "0 3 * * *")

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	if scheduler.Entries() != 1 {
		t.Errorf("got %d entries, want 1", scheduler.Entries())
	}

	next, ok := scheduler.NextRun(retentionJob)
	if !ok {
		t.Fatal("retention job has no next run")
	}
	if !next.After(time.Now()) {
		t.Errorf("next run %v is not in the future", next)
	}
}

func TestSchedulerRetentionDisabled(t *testing.T) {
	scheduler, _ := setupSchedulerTest(t, 0, "0 3 * * *")

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	if scheduler.Entries() != 0 {
		t.Errorf("got %d entries, want 0", scheduler.Entries())
	}

	if _, ok := scheduler.NextRun(retentionJob); ok {
		t.Error("retention job should not be registered")
	}
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	scheduler, _ := setupSchedulerTest(t, 30, "invalid cron")

	if err := scheduler.Start(context.Background()); err == nil {
		t.Error("expected error for invalid cron expression")
		scheduler.Stop()
	}
}

func TestSchedulerSixFieldSchedule(t *testing.T) {
	scheduler, _ := setupSchedulerTest(t, 30, "30 0 3 * * *")

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	if scheduler.Entries() != 1 {
		t.Errorf("got %d entries, want 1", scheduler.Entries())
	}
}

func TestSchedulerRunNow(t *testing.T) {
	scheduler, db := setupSchedulerTest(t, 1, "0 3 * * *")

	stale, err := db.CreateSession("stale", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	fresh, err := db.CreateSession("fresh", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Age the first session artificially.
	old := time.Now().AddDate(0, 0, -3)
	if _, err := db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", old, stale.ID); err != nil {
		t.Fatalf("age session: %v", err)
	}

	removed, err := scheduler.RunNow()
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := db.GetSession(stale.ID); err != storage.ErrNotFound {
		t.Error("stale session should be gone")
	}
	if _, err := db.GetSession(fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
}

func TestSchedulerRunNow_RetentionDisabled(t *testing.T) {
	scheduler, db := setupSchedulerTest(t, 0, "")

	sess, err := db.CreateSession("keeper", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	old := time.Now().AddDate(0, 0, -90)
	if _, err := db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", old, sess.ID); err != nil {
		t.Fatalf("age session: %v", err)
	}

	removed, err := scheduler.RunNow()
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	if _, err := db.GetSession(sess.ID); err != nil {
		t.Errorf("session should survive with retention disabled: %v", err)
	}
}
