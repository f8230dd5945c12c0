package twilio

import (
	"fmt"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Client wraps the Twilio messaging operations used for reminder delivery.
type Client struct {
	client              *twilio.RestClient
	messagingServiceSID string
	fromWhatsApp        string
}

// New creates a Twilio client bound to the configured messaging service and
// WhatsApp sender number.
func New(accountSID, authToken, messagingServiceSID, fromWhatsApp string) *Client {
	return &Client{
		client:              twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		messagingServiceSID: messagingServiceSID,
		fromWhatsApp:        fromWhatsApp,
	}
}

// WhatsAppConfigured reports whether a WhatsApp sender identity is set.
func (c *Client) WhatsAppConfigured() bool {
	return strings.TrimSpace(c.fromWhatsApp) != ""
}

// SendSMS sends a plain SMS through the configured messaging service.
func (c *Client) SendSMS(to, body string) error {
	if c.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient number missing")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetMessagingServiceSid(c.messagingServiceSID)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send sms: %w", err)
	}
	return nil
}

// SendWhatsApp sends a WhatsApp message via Twilio's API.
func (c *Client) SendWhatsApp(to, body string) error {
	if c.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send whatsapp: %w", err)
	}
	return nil
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
