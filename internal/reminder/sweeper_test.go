package reminder

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuroedu/kuro-backend/internal/model"
	"github.com/kuroedu/kuro-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) SendReminderNotification(_ context.Context, client model.Client, reminder model.Reminder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fmt.Sprintf("%s/%s", client.ClientID, reminder.ReminderType))
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Client{}, &model.Reminder{}, &model.SignedDocument{}))

	return store.New(db)
}

func seedClient(t *testing.T, s *store.Store, clientID string) {
	t.Helper()
	require.NoError(t, s.CreateClient(&model.Client{
		ClientID: clientID,
		Name:     "Client " + clientID,
		Email:    clientID + "@example.com",
	}))
}

func seedReminder(t *testing.T, s *store.Store, clientID, kind string, date time.Time) {
	t.Helper()
	require.NoError(t, s.AddReminder(&model.Reminder{
		ClientID:         clientID,
		ReminderType:     kind,
		ReminderDate:     date,
		DeliveryChannels: "email",
	}))
}

func TestProcessWindowBoundsAndCount(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	notifier := &recordingNotifier{}
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)

	seedClient(t, st, "KURO-AAAA1111")
	seedReminder(t, st, "KURO-AAAA1111", "too-early", now.AddDate(0, 0, -1))
	seedReminder(t, st, "KURO-AAAA1111", "today", now)
	seedReminder(t, st, "KURO-AAAA1111", "edge", now.AddDate(0, 0, 14))
	seedReminder(t, st, "KURO-AAAA1111", "too-late", now.AddDate(0, 0, 15))

	sweeper := NewSweeper(st, notifier, 14, time.UTC, log.New(io.Discard, "", 0))
	sweeper.now = func() time.Time { return now }

	processed, err := sweeper.ProcessWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.ElementsMatch(t,
		[]string{"KURO-AAAA1111/today", "KURO-AAAA1111/edge"},
		notifier.events)
}

func TestProcessWindowSkipsMissingClient(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	notifier := &recordingNotifier{}
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)

	seedClient(t, st, "KURO-AAAA1111")
	seedReminder(t, st, "KURO-AAAA1111", "kept", now.AddDate(0, 0, 3))
	// Orphaned reminder: no such client record.
	seedReminder(t, st, "KURO-GHOST999", "orphan", now.AddDate(0, 0, 3))

	sweeper := NewSweeper(st, notifier, 14, time.UTC, log.New(io.Discard, "", 0))
	sweeper.now = func() time.Time { return now }

	processed, err := sweeper.ProcessWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"KURO-AAAA1111/kept"}, notifier.events)
}

func TestProcessWindowEmpty(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	notifier := &recordingNotifier{}

	sweeper := NewSweeper(st, notifier, 14, time.UTC, log.New(io.Discard, "", 0))

	processed, err := sweeper.ProcessWindow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Empty(t, notifier.events)
}

func TestSchedulerTickFiresOncePerDay(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	notifier := &recordingNotifier{}
	day := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

	seedClient(t, st, "KURO-AAAA1111")
	seedReminder(t, st, "KURO-AAAA1111", "due", day.AddDate(0, 0, 2))

	sweeper := NewSweeper(st, notifier, 14, time.UTC, log.New(io.Discard, "", 0))
	sweeper.now = func() time.Time { return day }
	scheduler := NewScheduler(sweeper, nil, time.UTC, log.New(io.Discard, "", 0))

	// Before the target hour nothing fires.
	scheduler.tick(day.Add(-30 * time.Minute))
	assert.Zero(t, notifier.count())

	// Ticks landing repeatedly inside the 08:00 minute trigger one sweep.
	for i := 0; i < 10; i++ {
		scheduler.tick(day.Add(time.Duration(i*6) * time.Second))
	}
	assert.Equal(t, 1, notifier.count())

	// Later the same day: still guarded.
	scheduler.tick(day.Add(5 * time.Hour))
	assert.Equal(t, 1, notifier.count())

	// Next day's tick fires again.
	scheduler.tick(day.AddDate(0, 0, 1))
	assert.Equal(t, 2, notifier.count())
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sweeper := NewSweeper(st, &recordingNotifier{}, 14, time.UTC, log.New(io.Discard, "", 0))
	scheduler := NewScheduler(sweeper, nil, time.UTC, log.New(io.Discard, "", 0))

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	assert.Len(t, scheduler.cron.Entries(), 1)
}

func TestManualRunDoesNotDisturbDailyGuard(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	notifier := &recordingNotifier{}
	day := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

	seedClient(t, st, "KURO-AAAA1111")
	seedReminder(t, st, "KURO-AAAA1111", "due", day.AddDate(0, 0, 1))

	sweeper := NewSweeper(st, notifier, 14, time.UTC, log.New(io.Discard, "", 0))
	sweeper.now = func() time.Time { return day }
	scheduler := NewScheduler(sweeper, nil, time.UTC, log.New(io.Discard, "", 0))

	// A manual sweep before the daily run leaves the guard untouched.
	_, err := sweeper.ProcessWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())

	scheduler.tick(day)
	assert.Equal(t, 2, notifier.count())
}
