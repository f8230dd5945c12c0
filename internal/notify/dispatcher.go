// Package notify composes confirmation and reminder messages and fans them
// out across the configured delivery channels. Channels are best-effort and
// independent: one failing send never blocks or cancels its siblings.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/kuroedu/kuro-backend/internal/model"
)

// Mailer delivers a single HTML email.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// Messenger delivers SMS and WhatsApp messages.
type Messenger interface {
	SendSMS(to, body string) error
	SendWhatsApp(to, body string) error
	WhatsAppConfigured() bool
}

// Dispatcher routes notifications to whichever channels are configured.
// A nil Mailer or Messenger means that channel is not configured and is
// skipped silently.
type Dispatcher struct {
	mailer    Mailer
	messenger Messenger
	logger    *log.Logger
}

// New creates a dispatcher. Either dependency may be nil.
func New(mailer Mailer, messenger Messenger, logger *log.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, messenger: messenger, logger: logger}
}

// IntakeConfirmation carries the fields of the confirmation email sent after
// a client submits the intake form.
type IntakeConfirmation struct {
	To             string
	Name           string
	ClientID       string
	ReminderOptIn  bool
	VisaExpiryDate string
}

// SendIntakeConfirmation emails a new client their reference details. When
// mail is not configured this is a logged no-op, never an error. Vendor
// failures during the actual send are returned to the caller.
func (d *Dispatcher) SendIntakeConfirmation(ctx context.Context, req IntakeConfirmation) error {
	if d.mailer == nil {
		d.logger.Printf("notify: skipping email confirmation; SMTP is not configured")
		return nil
	}

	reminderLine := "You can enable reminders at any time by replying to this email."
	if req.ReminderOptIn {
		reminderLine = "You opted in for automated reminders. We'll notify you ahead of your visa expiry"
		if req.VisaExpiryDate != "" {
			reminderLine += " on " + req.VisaExpiryDate
		}
		reminderLine += "."
	}

	html := fmt.Sprintf(`
    <p>Hi %s,</p>
    <p>Thank you for contacting Kuro Educational Consultancy. Your Client ID is <strong>%s</strong>.</p>
    <p>We'll use this ID to reference your visa or travel case. %s</p>
    <p>If you need immediate assistance, reply to this message or WhatsApp us at +263 71 234 5678.</p>
    <p>Warm regards,<br/>Kuro Educational Consultancy</p>
  `, req.Name, req.ClientID, reminderLine)

	return d.mailer.SendMail(ctx, req.To, "We received your enquiry", html)
}

// SendReminderNotification fans a due reminder out to every requested and
// configured channel, waits for all sends to settle, and logs failures.
// Nothing is persisted and nothing is returned: the reminder record is
// read-only to this layer.
func (d *Dispatcher) SendReminderNotification(ctx context.Context, client model.Client, reminder model.Reminder) {
	channels := ParseChannels(reminder.DeliveryChannels)
	date := reminder.ReminderDate.Format("2006-01-02")

	type task struct {
		channel string
		send    func() error
	}
	var tasks []task

	if d.mailer != nil && hasChannel(channels, "email") {
		html := fmt.Sprintf(`
      <p>Hi %s,</p>
      <p>This is a friendly reminder that <strong>%s</strong> is scheduled for %s.</p>
      <p>Your Client ID is <strong>%s</strong>.</p>
      <p>- Kuro Educational Consultancy</p>
    `, client.Name, reminder.ReminderType, date, client.ClientID)
		subject := fmt.Sprintf("Reminder: %s for %s", reminder.ReminderType, client.Name)
		tasks = append(tasks, task{channel: "email", send: func() error {
			return d.mailer.SendMail(ctx, client.Email, subject, html)
		}})
	}

	if d.messenger != nil && hasChannel(channels, "sms") && client.Phone != "" {
		body := fmt.Sprintf("Reminder: %s is scheduled for %s. Client ID: %s",
			reminder.ReminderType, date, client.ClientID)
		tasks = append(tasks, task{channel: "sms", send: func() error {
			return d.messenger.SendSMS(client.Phone, body)
		}})
	}

	if d.messenger != nil && d.messenger.WhatsAppConfigured() &&
		client.WhatsAppOptIn && hasChannel(channels, "whatsapp") && client.Phone != "" {
		body := fmt.Sprintf("Kuro Educational Consultancy reminder: %s on %s. Client ID %s",
			reminder.ReminderType, date, client.ClientID)
		tasks = append(tasks, task{channel: "whatsapp", send: func() error {
			return d.messenger.SendWhatsApp(client.Phone, body)
		}})
	}

	if len(tasks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, tk := range tasks {
		wg.Add(1)
		go func(tk task) {
			defer wg.Done()
			if err := tk.send(); err != nil {
				d.logger.Printf("notify: %s delivery failed for reminder %d (client %s): %v",
					tk.channel, reminder.ID, client.ClientID, err)
			}
		}(tk)
	}
	wg.Wait()
}

// ParseChannels normalizes a stored delivery-channel value. The value may be
// a JSON array or a comma list; unknown entries and duplicates are dropped.
// An empty or unparseable value defaults to the email channel, so the
// normalized set is never empty.
func ParseChannels(raw string) []string {
	var candidates []string

	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		var parsed []string
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			candidates = parsed
		} else {
			candidates = strings.Split(trimmed, ",")
		}
	}

	seen := make(map[string]bool, 3)
	var channels []string
	for _, candidate := range candidates {
		channel := strings.ToLower(strings.TrimSpace(candidate))
		switch channel {
		case "email", "sms", "whatsapp":
			if !seen[channel] {
				seen[channel] = true
				channels = append(channels, channel)
			}
		}
	}

	if len(channels) == 0 {
		return []string{"email"}
	}
	return channels
}

func hasChannel(channels []string, want string) bool {
	for _, channel := range channels {
		if channel == want {
			return true
		}
	}
	return false
}
