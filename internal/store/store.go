package store

import (
	"errors"
	"time"

	"github.com/kuroedu/kuro-backend/internal/model"
	"gorm.io/gorm"
)

// Store owns all reads and writes for clients, reminders, and signed
// documents. Callers never mutate records they receive.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateClient persists a new client record.
func (s *Store) CreateClient(client *model.Client) error {
	return s.db.Create(client).Error
}

// FindClient looks a client up by its public identifier.
// Returns (nil, nil) when no such client exists.
func (s *Store) FindClient(clientID string) (*model.Client, error) {
	var client model.Client
	err := s.db.Where("client_id = ?", clientID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients returns all clients, newest first.
func (s *Store) ListClients() ([]model.Client, error) {
	var clients []model.Client
	err := s.db.Order("created_at DESC").Find(&clients).Error
	return clients, err
}

// AddReminder persists a reminder. The reminder date is normalized to the
// start of its calendar day so window queries compare whole days.
func (s *Store) AddReminder(reminder *model.Reminder) error {
	reminder.ReminderDate = StartOfDay(reminder.ReminderDate)
	return s.db.Create(reminder).Error
}

// RemindersForClient returns a client's reminders ordered by date.
func (s *Store) RemindersForClient(clientID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.db.Where("client_id = ?", clientID).
		Order("reminder_date ASC").
		Find(&reminders).Error
	return reminders, err
}

// RemindersWithinWindow returns reminders dated from the start of now's
// calendar day through the day windowDays out, inclusive on both ends.
func (s *Store) RemindersWithinWindow(now time.Time, windowDays int) ([]model.Reminder, error) {
	start := StartOfDay(now)
	// Exclusive upper bound one day past the window keeps day N inclusive
	// regardless of the stored time-of-day.
	end := start.AddDate(0, 0, windowDays+1)

	var reminders []model.Reminder
	err := s.db.Where("reminder_date >= ? AND reminder_date < ?", start, end).
		Order("reminder_date ASC").
		Find(&reminders).Error
	return reminders, err
}

// AddSignedDocument persists a new envelope record.
func (s *Store) AddSignedDocument(doc *model.SignedDocument) error {
	return s.db.Create(doc).Error
}

// DocumentsForClient returns a client's signature envelopes, newest first.
func (s *Store) DocumentsForClient(clientID string) ([]model.SignedDocument, error) {
	var docs []model.SignedDocument
	err := s.db.Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

// RecordSignedDocumentStatus updates the status of an existing envelope or
// inserts a record when the envelope is seen for the first time.
func (s *Store) RecordSignedDocumentStatus(clientID, envelopeID, status, documentURL, documentType string) error {
	var doc model.SignedDocument
	err := s.db.Where("client_id = ? AND envelope_id = ?", clientID, envelopeID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if documentType == "" {
			documentType = "Visa Agreement"
		}
		return s.db.Create(&model.SignedDocument{
			ClientID:     clientID,
			EnvelopeID:   envelopeID,
			Status:       status,
			DocumentURL:  documentURL,
			DocumentType: documentType,
		}).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]any{
		"status":       status,
		"document_url": documentURL,
	}
	if documentType != "" {
		updates["document_type"] = documentType
	}
	return s.db.Model(&doc).Updates(updates).Error
}

// StartOfDay truncates a timestamp to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
