package store

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kuroedu/kuro-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Client{}, &model.Reminder{}, &model.SignedDocument{}))

	return New(db)
}

func TestCreateAndFindClient(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.CreateClient(&model.Client{
		ClientID: "KURO-AAAA1111",
		Name:     "Tariro Moyo",
		Email:    "tariro@example.com",
	}))

	client, err := s.FindClient("KURO-AAAA1111")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "Tariro Moyo", client.Name)

	missing, err := s.FindClient("KURO-DOESNOTEX")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListClientsNewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"KURO-00000001", "KURO-00000002", "KURO-00000003"} {
		require.NoError(t, s.CreateClient(&model.Client{
			ClientID:  id,
			Name:      "Client " + id,
			Email:     id + "@example.com",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	clients, err := s.ListClients()
	require.NoError(t, err)
	require.Len(t, clients, 3)
	assert.Equal(t, "KURO-00000003", clients[0].ClientID)
	assert.Equal(t, "KURO-00000001", clients[2].ClientID)
}

func TestRemindersWithinWindowBounds(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// Wall clock well into the day; a reminder dated today must still match.
	now := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	const windowDays = 14

	dates := map[string]time.Time{
		"yesterday":   now.AddDate(0, 0, -1),
		"today":       now,
		"mid-window":  now.AddDate(0, 0, 9),
		"window-edge": now.AddDate(0, 0, windowDays),
		"past-window": now.AddDate(0, 0, windowDays+1),
	}
	for label, date := range dates {
		require.NoError(t, s.AddReminder(&model.Reminder{
			ClientID:     "KURO-AAAA1111",
			ReminderType: label,
			ReminderDate: date,
		}))
	}

	reminders, err := s.RemindersWithinWindow(now, windowDays)
	require.NoError(t, err)

	var labels []string
	for _, r := range reminders {
		labels = append(labels, r.ReminderType)
	}
	assert.ElementsMatch(t, []string{"today", "mid-window", "window-edge"}, labels)
}

func TestAddReminderNormalizesDate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.AddReminder(&model.Reminder{
		ClientID:     "KURO-AAAA1111",
		ReminderType: "Visa expiry",
		ReminderDate: time.Date(2024, 5, 20, 18, 45, 12, 0, time.UTC),
	}))

	reminders, err := s.RemindersForClient("KURO-AAAA1111")
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), reminders[0].ReminderDate.UTC())
}

func TestRecordSignedDocumentStatusUpsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.RecordSignedDocumentStatus("KURO-AAAA1111", "env-1", "sent", "", ""))

	docs, err := s.DocumentsForClient("KURO-AAAA1111")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "sent", docs[0].Status)
	assert.Equal(t, "Visa Agreement", docs[0].DocumentType)

	require.NoError(t, s.RecordSignedDocumentStatus("KURO-AAAA1111", "env-1", "completed", "https://docs.example.com/env-1", "Visa Agreement"))

	docs, err = s.DocumentsForClient("KURO-AAAA1111")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "completed", docs[0].Status)
	assert.Equal(t, "https://docs.example.com/env-1", docs[0].DocumentURL)
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Africa/Harare")
	require.NoError(t, err)

	in := time.Date(2024, 7, 4, 23, 59, 59, 0, loc)
	out := StartOfDay(in)
	assert.Equal(t, time.Date(2024, 7, 4, 0, 0, 0, 0, loc), out)
}
