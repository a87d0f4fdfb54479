// Package cron schedules background maintenance work.
package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"parley/internal/config"
	"parley/internal/storage"
	"parley/pkg/logger"
)

// retentionJob is the entry name for the session retention sweep.
const retentionJob = "retention"

// Scheduler runs periodic maintenance jobs with robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	db      *storage.DB
	cfg     *config.Config
	entries map[string]cron.EntryID
	mu      sync.RWMutex
	running bool
}

// NewScheduler creates a scheduler over the given store.
func NewScheduler(db *storage.DB, cfg *config.Config) *Scheduler {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.Local),
	)

	return &Scheduler{
		cron:    c,
		db:      db,
		cfg:     cfg,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers the configured jobs and starts the scheduler. With
// retention disabled there is nothing to schedule, but Start still
// succeeds so callers need not special-case it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	if s.cfg.Storage.RetentionDays > 0 {
		schedule := s.cfg.Storage.CleanupSchedule
		if schedule == "" {
			schedule = "0 3 * * *"
		}
		if err := s.addEntryLocked(retentionJob, schedule, s.runRetention); err != nil {
			return fmt.Errorf("cron: register retention job: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	logger.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")

	return nil
}

// Stop stops the scheduler. The returned context is done once running
// jobs have finished. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	ctx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	logger.Info().Msg("Scheduler stopped")
	return ctx
}

// RunNow triggers the retention sweep immediately, outside the schedule.
func (s *Scheduler) RunNow() (int64, error) {
	return s.sweep()
}

// NextRun returns the next scheduled run time for a job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryID, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(entryID)
	if entry.ID == 0 {
		return time.Time{}, false
	}

	return entry.Next, true
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// addEntryLocked registers a job with the cron scheduler.
// Caller must hold s.mu.
func (s *Scheduler) addEntryLocked(name, schedule string, fn func()) error {
	// robfig/cron expects a 6-field expression when using WithSeconds().
	// A standard 5-field schedule gets "0" prepended for the seconds.
	fields := strings.Fields(schedule)
	if len(fields) == 5 {
		schedule = "0 " + schedule
	}

	entryID, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}

	s.entries[name] = entryID
	return nil
}

// runRetention is the scheduled entry point for the retention sweep.
func (s *Scheduler) runRetention() {
	if _, err := s.sweep(); err != nil {
		logger.Error().Err(err).Msg("Retention sweep failed")
	}
}

// sweep deletes sessions idle past the retention window.
func (s *Scheduler) sweep() (int64, error) {
	days := s.cfg.Storage.RetentionDays
	if days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := s.db.DeleteSessionsIdleSince(cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		logger.Info().
			Int64("sessions", removed).
			Time("cutoff", cutoff).
			Msg("Retention sweep removed idle sessions")
	}

	return removed, nil
}
