package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("WEBHOOK_SIGNING_SECRET", "shh")
	t.Setenv("INTERNAL_ADMIN_SECRET", "admin-shh")
	t.Setenv("CREDENTIAL_PEPPER", "pepper-shh")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.WebhookSignatureHeader != "x-dialpad-signature" {
		t.Errorf("WebhookSignatureHeader = %q, want default", cfg.WebhookSignatureHeader)
	}
	if cfg.DispatcherBatchSize != 50 {
		t.Errorf("DispatcherBatchSize = %d, want 50", cfg.DispatcherBatchSize)
	}
	if cfg.DispatcherWorkers != 1 {
		t.Errorf("DispatcherWorkers = %d, want 1", cfg.DispatcherWorkers)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WEBHOOK_SIGNING_SECRET", "")
	t.Setenv("INTERNAL_ADMIN_SECRET", "")
	t.Setenv("CREDENTIAL_PEPPER", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing required vars, got nil")
	}
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCHER_BATCH_SIZE", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid DISPATCHER_BATCH_SIZE, got nil")
	}
}
