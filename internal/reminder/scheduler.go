package reminder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// dailyRunHour is the local hour after which the daily sweep may fire.
const dailyRunHour = 8

// Scheduler runs the reminder sweep once per calendar day at 08:00 local
// time, plus a weekly backup job. The schedule is a minute-granularity poll,
// so a last-run date guards against firing twice within the same day.
type Scheduler struct {
	sweeper  *Sweeper
	backup   func(ctx context.Context) error
	cron     *cron.Cron
	location *time.Location
	logger   *log.Logger

	mu         sync.Mutex
	started    bool
	lastRunDay string
}

// NewScheduler creates a scheduler. backup may be nil to disable the backup
// job.
func NewScheduler(sweeper *Sweeper, backup func(ctx context.Context) error, location *time.Location, logger *log.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		backup:   backup,
		cron:     cron.New(cron.WithLocation(location)),
		location: location,
		logger:   logger,
	}
}

// Start registers the jobs and starts the cron loop. Calling Start again is
// a no-op; only one set of timers ever exists.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if _, err := s.cron.AddFunc("@every 1m", func() {
		s.tick(time.Now().In(s.location))
	}); err != nil {
		return err
	}

	if s.backup != nil {
		if _, err := s.cron.AddFunc("0 3 * * 1", func() {
			if err := s.backup(context.Background()); err != nil {
				s.logger.Printf("scheduler: backup failed: %v", err)
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.started = true
	return nil
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// tick fires the sweep when the daily target time has passed and no sweep
// has run yet today. The guard is a single last-run date, process-local: a
// restart can re-run the sweep within the same day, an accepted tradeoff at
// this volume.
func (s *Scheduler) tick(now time.Time) {
	if now.Hour() < dailyRunHour {
		return
	}

	day := now.Format("2006-01-02")
	s.mu.Lock()
	if s.lastRunDay == day {
		s.mu.Unlock()
		return
	}
	s.lastRunDay = day
	s.mu.Unlock()

	processed, err := s.sweeper.ProcessWindow(context.Background())
	if err != nil {
		s.logger.Printf("scheduler: reminder sweep failed: %v", err)
		return
	}
	s.logger.Printf("scheduler: daily sweep dispatched %d reminder(s)", processed)
}
