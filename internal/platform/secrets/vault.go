// Package secrets wraps Vault KV v2 secret loading with a plain
// environment-variable fallback, so the module can run against a real
// Vault in staging/production and against bare env vars in local dev
// and CI without branching call sites.
package secrets

import (
	"fmt"
	"os"

	"github.com/hashicorp/vault/api"
)

// Manager reads secrets from Vault at a fixed KV v2 path.
type Manager struct {
	client *api.Client
}

// NewManager creates a Vault client pointed at address and authenticated
// with token.
func NewManager(address, token string) (*Manager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &Manager{client: client}, nil
}

// GetSecret reads a secret at path and returns the raw data map. For KV v2
// backends the caller must unwrap the nested "data" key (see GetKV2).
func (m *Manager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := m.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 reads from a KV v2 backend and returns the inner "data" map,
// unwrapping the v2 envelope automatically.
func (m *Manager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := m.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// Load resolves the named secrets, preferring Vault when VAULT_ADDR is
// set and falling back to plain environment variables otherwise. This is
// the single entry point cmd/api/main.go uses to load DATABASE_URL, NATS_URL,
// and the HMAC/credential pepper.
func Load(keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))

	vaultAddr := os.Getenv("VAULT_ADDR")
	if vaultAddr == "" {
		for _, k := range keys {
			v := os.Getenv(k)
			if v == "" {
				return nil, fmt.Errorf("missing required environment variable %s (VAULT_ADDR not set, no fallback)", k)
			}
			out[k] = v
		}
		return out, nil
	}

	vaultToken := os.Getenv("VAULT_TOKEN")
	if vaultToken == "" {
		vaultToken = "root"
	}
	secretPath := os.Getenv("VAULT_SECRET_PATH")
	if secretPath == "" {
		secretPath = "secret/data/dialpad-broker"
	}

	mgr, err := NewManager(vaultAddr, vaultToken)
	if err != nil {
		return nil, err
	}
	data, err := mgr.GetKV2(secretPath)
	if err != nil {
		return nil, err
	}

	for _, k := range keys {
		v, ok := data[k].(string)
		if !ok || v == "" {
			if env := os.Getenv(k); env != "" {
				out[k] = env
				continue
			}
			return nil, fmt.Errorf("missing required secret %s at %s", k, secretPath)
		}
		out[k] = v
	}
	return out, nil
}
