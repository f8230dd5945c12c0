package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kuroedu/kuro-backend/internal/config"
	"github.com/kuroedu/kuro-backend/internal/vendorapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCard() Card {
	return Card{
		Name:         "Tariro Moyo",
		ClientID:     "KURO-1A2B3C4D",
		Email:        "tariro@example.com",
		ReminderDate: "2027-06-30",
	}
}

func TestCreateCardUnconfiguredIsNoOp(t *testing.T) {
	c := New(config.TrelloConfig{})
	require.NoError(t, c.CreateCard(context.Background(), testCard()))
}

func TestCreateCardPayload(t *testing.T) {
	var received map[string]any
	var query map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"card-1"}`))
	}))
	defer server.Close()

	c := New(config.TrelloConfig{APIKey: "key", Token: "token", ListID: "list"})
	c.baseURL = server.URL

	require.NoError(t, c.CreateCard(context.Background(), testCard()))

	assert.Equal(t, "list", query["idList"][0])
	assert.Equal(t, "Tariro Moyo — KURO-1A2B3C4D", received["name"])
	assert.Contains(t, received["desc"], "Client ID: KURO-1A2B3C4D")
	assert.Contains(t, received["desc"], "Phone: N/A")
	assert.Contains(t, received["desc"], "Visa expiry: 2027-06-30")
	assert.Equal(t, "2027-06-30", received["due"])
}

func TestCreateCardVendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid token"))
	}))
	defer server.Close()

	c := New(config.TrelloConfig{APIKey: "key", Token: "token", ListID: "list"})
	c.baseURL = server.URL

	err := c.CreateCard(context.Background(), testCard())
	require.Error(t, err)

	var apiErr *vendorapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid token")
}
