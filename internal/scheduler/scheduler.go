// Package scheduler runs the relay's periodic background jobs: journal
// retention and the daily intercept statistics line.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/util"
)

// Store is the part of the journal the scheduler maintains.
type Store interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	InterceptCount(ctx context.Context) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      config.JournalConfig
	store    Store
	eventBus *events.EventBus
	now      func() time.Time
	logger   zerolog.Logger
}

// NewScheduler creates a task scheduler for store. eventBus may be nil.
func NewScheduler(cfg config.JournalConfig, store Store, eventBus *events.EventBus) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		eventBus: eventBus,
		now:      time.Now,
		logger:   util.ComponentLogger("scheduler"),
	}
}

// Start runs the jobs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Msg("scheduler started")

	done := make(chan struct{})
	if s.cfg.Retention > 0 {
		go func() {
			defer close(done)
			s.runCleanerLoop(ctx)
		}()
	} else {
		close(done)
	}

	s.runStatsLoop(ctx)
	<-done
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runCleanerLoop(ctx context.Context) {
	for {
		next := s.NextCleanup()
		wait := next.Sub(s.now())
		if wait <= 0 {
			wait = 24 * time.Hour
		}

		s.logger.Info().
			Time("next_run", next).
			Dur("sleep", wait).
			Msg("journal cleaner scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunCleaner(ctx)
		}
	}
}

// RunCleaner deletes journal rows older than the retention period.
func (s *Scheduler) RunCleaner(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	s.logger.Info().
		Time("cutoff", cutoff).
		Dur("retention", s.cfg.Retention).
		Msg("running journal cleaner")

	deleted, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("journal cleaner failed")
		return 0, err
	}

	s.logger.Info().Int64("deleted_rows", deleted).Msg("journal cleaner completed")
	if s.eventBus != nil {
		s.eventBus.Emit(ctx, events.New(events.EventJournalPruned, "scheduler",
			events.PrunePayload{Cutoff: cutoff, Deleted: deleted}))
	}
	return deleted, nil
}

func (s *Scheduler) runStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats(ctx)
		}
	}
}

func (s *Scheduler) collectStats(ctx context.Context) {
	count, err := s.store.InterceptCount(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to count intercepts")
		return
	}
	s.logger.Info().Int64("intercepts", count).Msg("daily stats collected")
}

// NextCleanup returns the next time the cleaner should run. A bad
// cleanup_time falls back to 04:00.
func (s *Scheduler) NextCleanup() time.Time {
	hour, minute, err := config.ParseClock(s.cfg.CleanupTime)
	if err != nil {
		hour, minute = 4, 0
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
