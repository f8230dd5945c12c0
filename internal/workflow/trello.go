// Package workflow posts an intake card to the consultancy's Trello board.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kuroedu/kuro-backend/internal/config"
	"github.com/kuroedu/kuro-backend/internal/vendorapi"
)

const trelloBaseURL = "https://api.trello.com/1"

// Client creates workflow cards for new intakes.
type Client struct {
	cfg        config.TrelloConfig
	httpClient *http.Client
	baseURL    string
}

// New creates a Trello client.
func New(cfg config.TrelloConfig) *Client {
	return &Client{cfg: cfg, httpClient: http.DefaultClient, baseURL: trelloBaseURL}
}

// Card describes the intake to post to the board.
type Card struct {
	Name         string
	ClientID     string
	Email        string
	Phone        string
	ReminderDate string
}

// CreateCard posts a card for the intake to the configured list. When the
// integration is not configured this is a no-op.
func (c *Client) CreateCard(ctx context.Context, card Card) error {
	if !c.cfg.Configured() {
		return nil
	}

	phone := card.Phone
	if phone == "" {
		phone = "N/A"
	}
	description := []string{
		"Client ID: " + card.ClientID,
		"Email: " + card.Email,
		"Phone: " + phone,
	}
	if card.ReminderDate != "" {
		description = append(description, "Visa expiry: "+card.ReminderDate)
	}

	payload := map[string]any{
		"name": fmt.Sprintf("%s — %s", card.Name, card.ClientID),
		"desc": strings.Join(description, "\n"),
	}
	if card.ReminderDate != "" {
		payload["due"] = card.ReminderDate
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	query := url.Values{
		"idList": {c.cfg.ListID},
		"key":    {c.cfg.APIKey},
		"token":  {c.cfg.Token},
	}
	endpoint := fmt.Sprintf("%s/cards?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &vendorapi.APIError{Service: "trello", StatusCode: resp.StatusCode, Body: string(text)}
	}
	return nil
}
