// Package reminder finds reminders due within a rolling window and triggers
// notifications for them, at most once per calendar day.
package reminder

import (
	"context"
	"log"
	"time"

	"github.com/kuroedu/kuro-backend/internal/model"
)

// Source provides read access to reminders and their owning clients.
type Source interface {
	RemindersWithinWindow(now time.Time, windowDays int) ([]model.Reminder, error)
	FindClient(clientID string) (*model.Client, error)
}

// Notifier delivers a due reminder across its channels.
type Notifier interface {
	SendReminderNotification(ctx context.Context, client model.Client, reminder model.Reminder)
}

// Sweeper scans for due reminders and dispatches notifications for each,
// sequentially. It only ever reads client and reminder records.
type Sweeper struct {
	source     Source
	notifier   Notifier
	windowDays int
	location   *time.Location
	logger     *log.Logger

	now func() time.Time
}

// NewSweeper creates a sweeper over the given window size.
func NewSweeper(source Source, notifier Notifier, windowDays int, location *time.Location, logger *log.Logger) *Sweeper {
	return &Sweeper{
		source:     source,
		notifier:   notifier,
		windowDays: windowDays,
		location:   location,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessWindow dispatches notifications for every reminder dated between
// the start of today and the day windowDays out, inclusive. Reminders whose
// owning client is missing are skipped. Reminders are processed one at a
// time; a delivery problem with one never stops the rest. The returned count
// is the number of reminders for which dispatch was attempted. Only a
// failure reading the reminder list aborts the sweep.
func (s *Sweeper) ProcessWindow(ctx context.Context) (int, error) {
	now := s.now().In(s.location)

	reminders, err := s.source.RemindersWithinWindow(now, s.windowDays)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, reminder := range reminders {
		client, err := s.source.FindClient(reminder.ClientID)
		if err != nil {
			s.logger.Printf("sweep: client lookup for reminder %d failed: %v", reminder.ID, err)
			continue
		}
		if client == nil {
			// Orphaned reminder; data-integrity gap, not fatal.
			continue
		}

		s.notifier.SendReminderNotification(ctx, *client, reminder)
		attempted++
	}
	return attempted, nil
}
