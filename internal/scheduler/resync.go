// Package scheduler periodically pulls server state into the local mirror.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/shelfscan/internal/backend"
)

const resyncTimeout = 2 * time.Minute

// Syncer reloads the mirror from the server.
type Syncer interface {
	Resync(ctx context.Context) error
}

// Status describes the most recent run.
type Status struct {
	Running  bool       `json:"running"`
	Syncing  bool       `json:"syncing"`
	Schedule string     `json:"schedule"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// ResyncScheduler runs Syncer.Resync on a cron schedule.
type ResyncScheduler struct {
	syncer   Syncer
	schedule string
	logger   *slog.Logger

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	lastRun    *time.Time
	lastErr    error
	cancelFunc context.CancelFunc
}

// NewResyncScheduler creates a new scheduler instance
func NewResyncScheduler(syncer Syncer, schedule string, logger *slog.Logger) *ResyncScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResyncScheduler{
		syncer:   syncer,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(cron.WithParser(parser)),
	}
}

// Start schedules the job and stops it again when ctx ends.
func (s *ResyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateCronSchedule(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.RunNow(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule resync job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	next, _ := NextRunTime(s.schedule, time.Now())
	s.logger.Info("resync scheduler started",
		"schedule", s.schedule,
		"description", CronDescription(s.schedule),
		"next_run", next)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler
func (s *ResyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	done := s.cron.Stop()
	<-done.Done()

	s.cron.Remove(s.entryID)
	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	s.logger.Info("resync scheduler stopped")
}

// RunNow performs one resync unless one is already in progress.
func (s *ResyncScheduler) RunNow(ctx context.Context) {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		s.logger.Debug("resync skipped, already syncing")
		return
	}
	s.isSyncing = true
	s.mu.Unlock()

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, resyncTimeout)
	defer cancel()

	err := s.syncer.Resync(runCtx)

	s.mu.Lock()
	s.isSyncing = false
	s.lastRun = &start
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case err == nil:
		s.logger.Info("resync finished", "duration", time.Since(start).Round(time.Millisecond))
	case errors.Is(err, backend.ErrUnauthenticated):
		s.logger.Info("resync skipped, not signed in")
	default:
		s.logger.Warn("resync failed", "error", err, "retryable", backend.IsRetryable(err))
	}
}

// Status reports the scheduler state.
func (s *ResyncScheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:  s.isRunning,
		Syncing:  s.isSyncing,
		Schedule: s.schedule,
		LastRun:  s.lastRun,
	}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	if s.isRunning {
		for _, entry := range s.cron.Entries() {
			if entry.ID == s.entryID {
				t := entry.Next
				st.NextRun = &t
			}
		}
	}
	return st
}
