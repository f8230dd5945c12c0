package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port           string
	AdminToken     string
	AllowedOrigins string

	SMTP     SMTPConfig
	Twilio   TwilioConfig
	DocuSign DocuSignConfig
	Trello   TrelloConfig
	AWS      AWSConfig

	DatabaseURL        string
	ReminderWindowDays int
	LocalTimezone      *time.Location
}

// SMTPConfig holds the mail server connection settings.
type SMTPConfig struct {
	Host   string
	Port   int
	User   string
	Pass   string
	From   string
	Secure bool
}

// Configured reports whether enough is set to attempt delivery.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Pass != ""
}

// TwilioConfig holds SMS/WhatsApp provider credentials.
type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	MessagingServiceSID string
	WhatsAppFrom        string
}

func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

// DocuSignConfig holds the e-signature JWT grant settings.
type DocuSignConfig struct {
	IntegrationKey string
	UserID         string
	AuthServer     string
	PrivateKey     string
	TemplateID     string
	BasePath       string
}

func (c DocuSignConfig) Configured() bool {
	return c.IntegrationKey != "" && c.UserID != "" && c.PrivateKey != "" && c.TemplateID != ""
}

// TrelloConfig holds the kanban board integration settings.
type TrelloConfig struct {
	APIKey string
	Token  string
	ListID string
}

func (c TrelloConfig) Configured() bool {
	return c.APIKey != "" && c.Token != "" && c.ListID != ""
}

// AWSConfig holds the backup bucket credentials.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BackupBucket    string
}

func (c AWSConfig) Configured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BackupBucket != ""
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	timezoneName := getenvDefault("LOCAL_TIMEZONE", "Local")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err)
		location = time.Local
	}

	return &Config{
		Port:           getenvDefault("PORT", "4000"),
		AdminToken:     getenvDefault("ADMIN_TOKEN", "change-me-admin-token"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		SMTP: SMTPConfig{
			Host:   os.Getenv("SMTP_HOST"),
			Port:   ParseIntEnv("SMTP_PORT", 587),
			User:   os.Getenv("SMTP_USER"),
			Pass:   os.Getenv("SMTP_PASS"),
			From:   getenvDefault("SMTP_FROM", "support@kuroeduconsultancy.com"),
			Secure: parseBoolEnv("SMTP_SECURE", false),
		},
		Twilio: TwilioConfig{
			AccountSID:          os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:           os.Getenv("TWILIO_AUTH_TOKEN"),
			MessagingServiceSID: os.Getenv("TWILIO_MESSAGING_SERVICE_SID"),
			WhatsAppFrom:        os.Getenv("TWILIO_WHATSAPP_FROM"),
		},
		DocuSign: DocuSignConfig{
			IntegrationKey: os.Getenv("DOCUSIGN_INTEGRATION_KEY"),
			UserID:         os.Getenv("DOCUSIGN_USER_ID"),
			AuthServer:     getenvDefault("DOCUSIGN_AUTH_SERVER", "account.docusign.com"),
			PrivateKey:     os.Getenv("DOCUSIGN_PRIVATE_KEY"),
			TemplateID:     os.Getenv("DOCUSIGN_TEMPLATE_ID"),
			BasePath:       getenvDefault("DOCUSIGN_BASE_PATH", "https://demo.docusign.net/restapi"),
		},
		Trello: TrelloConfig{
			APIKey: os.Getenv("TRELLO_API_KEY"),
			Token:  os.Getenv("TRELLO_TOKEN"),
			ListID: os.Getenv("TRELLO_LIST_ID"),
		},
		AWS: AWSConfig{
			Region:          getenvDefault("AWS_REGION", "us-east-1"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			BackupBucket:    os.Getenv("AWS_BACKUP_BUCKET"),
		},
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ReminderWindowDays: ParseIntEnv("REMINDER_WINDOW_DAYS", 14),
		LocalTimezone:      location,
	}
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}

func parseBoolEnv(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as bool: %v", key, value, err)
		return def
	}
	return parsed
}
