// Package signature requests e-signature sessions from DocuSign using the
// JWT grant flow.
package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kuroedu/kuro-backend/internal/config"
	"github.com/kuroedu/kuro-backend/internal/vendorapi"
)

// Client drives the DocuSign envelope flow.
type Client struct {
	cfg        config.DocuSignConfig
	httpClient *http.Client
}

// New creates a DocuSign client.
func New(cfg config.DocuSignConfig) *Client {
	return &Client{cfg: cfg, httpClient: http.DefaultClient}
}

// Request identifies the signer and document for a new envelope.
type Request struct {
	ClientID     string
	SignerName   string
	SignerEmail  string
	DocumentType string
}

// Result is the outcome of a signature request.
type Result struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	EnvelopeID string `json:"envelopeId,omitempty"`
	SigningURL string `json:"signingUrl,omitempty"`
}

// RequestSignature creates an envelope from the configured template and
// returns an embedded signing URL. When the integration is not configured
// the result carries status "disabled" and no error.
func (c *Client) RequestSignature(ctx context.Context, req Request) (*Result, error) {
	if !c.cfg.Configured() {
		return &Result{
			Status:  "disabled",
			Message: "DocuSign environment variables are not configured. Unable to generate a signing session.",
		}, nil
	}

	accessToken, err := c.requestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	accountID, err := c.fetchAccountID(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	envelopeID, err := c.createEnvelope(ctx, accessToken, accountID, req)
	if err != nil {
		return nil, err
	}

	signingURL, err := c.createRecipientView(ctx, accessToken, accountID, envelopeID, req)
	if err != nil {
		return nil, err
	}

	return &Result{Status: "sent", EnvelopeID: envelopeID, SigningURL: signingURL}, nil
}

// buildAssertion signs a short-lived RS256 JWT for the OAuth JWT grant.
func (c *Client) buildAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.cfg.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("docusign: parse private key: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   c.cfg.IntegrationKey,
		"sub":   c.cfg.UserID,
		"aud":   c.cfg.AuthServer,
		"scope": "signature",
		"iat":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
	})
	return token.SignedString(key)
}

func (c *Client) requestAccessToken(ctx context.Context) (string, error) {
	assertion, err := c.buildAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	endpoint := fmt.Sprintf("https://%s/oauth/token", c.cfg.AuthServer)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}
	return payload.AccessToken, nil
}

func (c *Client) fetchAccountID(ctx context.Context, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("https://%s/oauth/userinfo", c.cfg.AuthServer)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var payload struct {
		Accounts []struct {
			AccountID string `json:"account_id"`
			IsDefault bool   `json:"is_default"`
		} `json:"accounts"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}

	for _, account := range payload.Accounts {
		if account.IsDefault {
			return account.AccountID, nil
		}
	}
	if len(payload.Accounts) > 0 {
		return payload.Accounts[0].AccountID, nil
	}
	return "", fmt.Errorf("docusign: no account available for the configured user")
}

func (c *Client) createEnvelope(ctx context.Context, accessToken, accountID string, sigReq Request) (string, error) {
	definition := map[string]any{
		"templateId": c.cfg.TemplateID,
		"templateRoles": []map[string]any{
			{
				"email":        sigReq.SignerEmail,
				"name":         sigReq.SignerName,
				"roleName":     "Client",
				"clientUserId": sigReq.ClientID,
				"tabs": map[string]any{
					"textTabs": []map[string]string{
						{"tabLabel": "ClientID", "value": sigReq.ClientID},
						{"tabLabel": "DocumentType", "value": sigReq.DocumentType},
					},
				},
			},
		},
		"status": "sent",
	}

	body, err := json.Marshal(definition)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/envelopes", c.cfg.BasePath, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		EnvelopeID string `json:"envelopeId"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}
	return payload.EnvelopeID, nil
}

func (c *Client) createRecipientView(ctx context.Context, accessToken, accountID, envelopeID string, sigReq Request) (string, error) {
	view := map[string]string{
		"returnUrl":            fmt.Sprintf("%s/envelope/%s", c.cfg.BasePath, envelopeID),
		"authenticationMethod": "email",
		"email":                sigReq.SignerEmail,
		"userName":             sigReq.SignerName,
		"clientUserId":         sigReq.ClientID,
	}

	body, err := json.Marshal(view)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/envelopes/%s/views/recipient", c.cfg.BasePath, accountID, envelopeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}
	return payload.URL, nil
}

// do executes a request and decodes a JSON response, converting non-2xx
// replies into vendor API errors.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &vendorapi.APIError{Service: "docusign", StatusCode: resp.StatusCode, Body: string(text)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
