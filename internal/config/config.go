// Package config loads and validates the environment-variable
// configuration every command needs, failing fast at startup rather than
// surfacing missing values deep in a request path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every externally tunable setting for the broker process.
type Config struct {
	// Database
	DatabaseURL string

	// HTTP server
	Port string
	Env  string

	// Ingestor
	WebhookSigningSecret   string
	WebhookSignatureHeader string

	// Internal admin
	InternalAdminSecret string

	// Shared upstream API key, optional primary auth on some upstream calls.
	UpstreamSharedAPIKey string

	// OAuth, sandbox and production
	OAuthSandboxClientID        string
	OAuthSandboxClientSecret    string
	OAuthProductionClientID     string
	OAuthProductionClientSecret string
	OAuthRedirectURL            string
	OAuthScopes                 string

	// Upstream provider base URLs, sandbox and production, used to
	// register a tenant's webhook with the provider.
	UpstreamSandboxBaseURL    string
	UpstreamProductionBaseURL string

	// NATS
	NATSURL string

	// Observability
	OTelEndpoint string

	// Credential Manager pepper for the HMAC lookup index (see
	// internal/credential). Distinct from the webhook signing secret.
	CredentialPepper string

	// Dispatcher tuning
	DispatcherBatchSize int
	DispatcherInterval  time.Duration
	DispatcherWorkers   int

	// Fanout keepalive
	FanoutPingInterval time.Duration
}

// Load reads every required variable from the process environment,
// applying defaults where one is safe, and returns an error
// naming every missing required value so an operator fixes all of them
// in one pass rather than one failed restart at a time.
func Load() (*Config, error) {
	var missing []string
	req := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}
	opt := func(name, def string) string {
		v := os.Getenv(name)
		if v == "" {
			return def
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:                 req("DATABASE_URL"),
		Port:                        opt("PORT", "8080"),
		Env:                         opt("ENVIRONMENT", "development"),
		WebhookSigningSecret:        req("WEBHOOK_SIGNING_SECRET"),
		WebhookSignatureHeader:      opt("WEBHOOK_SIGNATURE_HEADER", "x-dialpad-signature"),
		InternalAdminSecret:         req("INTERNAL_ADMIN_SECRET"),
		UpstreamSharedAPIKey:        os.Getenv("UPSTREAM_SHARED_API_KEY"),
		OAuthSandboxClientID:        os.Getenv("OAUTH_SANDBOX_CLIENT_ID"),
		OAuthSandboxClientSecret:    os.Getenv("OAUTH_SANDBOX_CLIENT_SECRET"),
		OAuthProductionClientID:     os.Getenv("OAUTH_PRODUCTION_CLIENT_ID"),
		OAuthProductionClientSecret: os.Getenv("OAUTH_PRODUCTION_CLIENT_SECRET"),
		OAuthRedirectURL:            os.Getenv("OAUTH_REDIRECT_URL"),
		OAuthScopes:                 opt("OAUTH_SCOPES", ""),
		UpstreamSandboxBaseURL:      opt("UPSTREAM_SANDBOX_BASE_URL", "https://sandbox.dialpad.com"),
		UpstreamProductionBaseURL:   opt("UPSTREAM_PRODUCTION_BASE_URL", "https://dialpad.com"),
		NATSURL:                     opt("NATS_URL", "nats://localhost:4222"),
		OTelEndpoint:                os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CredentialPepper:            req("CREDENTIAL_PEPPER"),
		FanoutPingInterval:          30 * time.Second,
	}

	batchSize := opt("DISPATCHER_BATCH_SIZE", "50")
	n, err := strconv.Atoi(batchSize)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid DISPATCHER_BATCH_SIZE %q: must be a positive integer", batchSize)
	}
	cfg.DispatcherBatchSize = n

	interval := opt("DISPATCHER_INTERVAL", "1s")
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid DISPATCHER_INTERVAL %q: %w", interval, err)
	}
	cfg.DispatcherInterval = d

	workers := opt("DISPATCHER_WORKERS", "1")
	w, err := strconv.Atoi(workers)
	if err != nil || w <= 0 {
		return nil, fmt.Errorf("invalid DISPATCHER_WORKERS %q: must be a positive integer", workers)
	}
	cfg.DispatcherWorkers = w

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}
	return cfg, nil
}
