package model

import "time"

// Client is an intake submission. Records are immutable once created.
type Client struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	ClientID       string     `gorm:"uniqueIndex;not null" json:"client_id"`
	Name           string     `gorm:"not null" json:"name"`
	Email          string     `gorm:"not null" json:"email"`
	Phone          string     `json:"phone,omitempty"`
	Subject        string     `gorm:"type:text" json:"subject,omitempty"`
	Message        string     `gorm:"type:text" json:"message,omitempty"`
	SourcePage     string     `json:"source_page"`
	ReminderOptIn  bool       `json:"reminder_opt_in"`
	WhatsAppOptIn  bool       `gorm:"column:whatsapp_opt_in" json:"whatsapp_opt_in"`
	VisaExpiryDate *time.Time `json:"visa_expiry_date,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Reminder is a dated notification request owned by a client.
// DeliveryChannels is stored raw (JSON array or comma list) and is
// normalized at dispatch time.
type Reminder struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ClientID         string    `gorm:"index;not null" json:"client_id"`
	ReminderType     string    `gorm:"not null" json:"reminder_type"`
	ReminderDate     time.Time `gorm:"index;not null" json:"reminder_date"`
	DeliveryChannels string    `json:"delivery_channels"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SignedDocument tracks the status of an e-signature envelope.
type SignedDocument struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ClientID     string    `gorm:"index;not null" json:"client_id"`
	EnvelopeID   string    `gorm:"not null" json:"envelope_id"`
	DocumentType string    `json:"document_type"`
	Status       string    `json:"status"`
	DocumentURL  string    `json:"document_url,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
