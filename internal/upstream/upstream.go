// Package upstream talks to the third-party telephony provider over
// HTTPS: refreshing OAuth access tokens before they expire and recording
// webhook registrations made on a tenant's behalf. Adapted from
// notification-service's WebhookDispatcher — the same bounded-timeout
// http.Client and structured result logging, pointed at the provider's
// token and webhook endpoints instead of a tenant's delivery URL.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// requestTimeout bounds every outbound call to the provider, per the
// "outbound provider calls use a bounded timeout (~10s)" policy.
const requestTimeout = 10 * time.Second

// Credentials selects which OAuth client id/secret pair to present,
// since sandbox and production are registered as distinct applications
// with the provider.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client exchanges and refreshes OAuth tokens and registers webhooks with
// the upstream provider.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient constructs a Client with the standard bounded-timeout
// transport used for all outbound provider calls.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger,
	}
}

// RefreshedToken is the provider's token-refresh response, normalized to
// the fields the store needs to persist.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken exchanges a refresh token for a new access token using the
// standard OAuth2 refresh_token grant. On failure the binding's existing
// tokens are left untouched by the caller; the operation fails and a
// re-authorization is expected.
func (c *Client) RefreshToken(ctx context.Context, creds Credentials, refreshToken string) (RefreshedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURL, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return RefreshedToken{}, fmt.Errorf("build token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("token refresh request failed", zap.Error(err))
		return RefreshedToken{}, fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Warn("token refresh rejected", zap.Int("status", resp.StatusCode))
		return RefreshedToken{}, fmt.Errorf("token refresh: upstream returned %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RefreshedToken{}, fmt.Errorf("decode token refresh response: %w", err)
	}

	return RefreshedToken{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// WebhookRegistrationRequest describes the webhook this broker wants the
// provider to deliver to.
type WebhookRegistrationRequest struct {
	AccessToken        string
	DeliveryURL        string
	SigningSecret      string
	SignatureAlgorithm string
}

// RegisteredWebhook is the provider's confirmation of a registered
// webhook, carrying the id this broker stores in WebhookRegistration.
type RegisteredWebhook struct {
	UpstreamWebhookID string
}

type webhookRegistrationBody struct {
	HookURL    string `json:"hook_url"`
	SigningKey string `json:"signing_key"`
	Algorithm  string `json:"signature_algorithm"`
}

// webhookRegistrationResponse keeps the id raw: the provider may send it
// as a JSON number or as a JSON string.
type webhookRegistrationResponse struct {
	ID json.RawMessage `json:"id"`
}

// RegisterWebhook creates a webhook registration with the provider on
// behalf of a tenant. The base URL is provided by the caller since
// sandbox and production providers are reached at different hosts.
func (c *Client) RegisterWebhook(ctx context.Context, baseURL string, req WebhookRegistrationRequest) (RegisteredWebhook, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(webhookRegistrationBody{
		HookURL:    req.DeliveryURL,
		SigningKey: req.SigningSecret,
		Algorithm:  req.SignatureAlgorithm,
	})
	if err != nil {
		return RegisteredWebhook{}, fmt.Errorf("marshal webhook registration: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v2/webhooks", bytes.NewReader(body))
	if err != nil {
		return RegisteredWebhook{}, fmt.Errorf("build webhook registration request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("webhook registration request failed", zap.Error(err))
		return RegisteredWebhook{}, fmt.Errorf("webhook registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Warn("webhook registration rejected", zap.Int("status", resp.StatusCode))
		return RegisteredWebhook{}, fmt.Errorf("webhook registration: upstream returned %d", resp.StatusCode)
	}

	var decoded webhookRegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return RegisteredWebhook{}, fmt.Errorf("decode webhook registration response: %w", err)
	}

	var id string
	if err := json.Unmarshal(decoded.ID, &id); err != nil {
		id = string(decoded.ID)
	}
	return RegisteredWebhook{UpstreamWebhookID: id}, nil
}
