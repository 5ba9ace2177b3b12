package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves the KV v2 read endpoints the secret loader uses
func fakeVault(t *testing.T, secrets map[string]map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for path, data := range secrets {
			if r.URL.Path == "/v1/secret/data/dealdesk/test/"+path {
				resp := map[string]interface{}{
					"data": map[string]interface{}{"data": data},
				}
				w.Header().Set("Content-Type", "application/json")
				require.NoError(t, json.NewEncoder(w).Encode(resp))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

func testVaultConfig(addr string) VaultConfig {
	return VaultConfig{
		Enabled:    true,
		Address:    addr,
		Token:      "test-token",
		MountPath:  "secret",
		SecretPath: "dealdesk/test",
	}
}

func TestNewVaultClient_Disabled(t *testing.T) {
	_, err := NewVaultClient(VaultConfig{Enabled: false})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestNewVaultClient_MissingToken(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")

	_, err := NewVaultClient(VaultConfig{
		Enabled: true,
		Address: "http://127.0.0.1:8200",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_TOKEN")
}

func TestGetSecretString(t *testing.T) {
	srv := fakeVault(t, map[string]map[string]interface{}{
		"reasoning": {"api_key": "sk-test-123"},
	})
	defer srv.Close()

	client, err := NewVaultClient(testVaultConfig(srv.URL))
	require.NoError(t, err)

	value, err := client.GetSecretString(context.Background(), "reasoning", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", value)
}

func TestGetSecretString_MissingKey(t *testing.T) {
	srv := fakeVault(t, map[string]map[string]interface{}{
		"reasoning": {"api_key": "sk-test-123"},
	})
	defer srv.Close()

	client, err := NewVaultClient(testVaultConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.GetSecretString(context.Background(), "reasoning", "nope")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestGetSecret_NotFound(t *testing.T) {
	srv := fakeVault(t, nil)
	defer srv.Close()

	client, err := NewVaultClient(testVaultConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLoadSecretsFromVault_Disabled(t *testing.T) {
	cfg := &Config{}
	err := LoadSecretsFromVault(context.Background(), cfg, VaultConfig{Enabled: false})
	require.NoError(t, err)
	assert.Empty(t, cfg.Reasoning.APIKey)
}

func TestLoadSecretsFromVault(t *testing.T) {
	srv := fakeVault(t, map[string]map[string]interface{}{
		"reasoning": {"api_key": "sk-vault"},
		"database":  {"url": "postgres://vault-host/dealdesk"},
		"redis":     {"password": "redis-secret"},
	})
	defer srv.Close()

	cfg := &Config{}
	err := LoadSecretsFromVault(context.Background(), cfg, testVaultConfig(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "sk-vault", cfg.Reasoning.APIKey)
	assert.Equal(t, "postgres://vault-host/dealdesk", cfg.Database.URL)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
}

func TestLoadSecretsFromVault_PartialSecrets(t *testing.T) {
	// Only the reasoning secret exists; the others fall back silently
	srv := fakeVault(t, map[string]map[string]interface{}{
		"reasoning": {"api_key": "sk-vault"},
	})
	defer srv.Close()

	cfg := &Config{}
	cfg.Database.URL = "postgres://from-env/dealdesk"

	err := LoadSecretsFromVault(context.Background(), cfg, testVaultConfig(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "sk-vault", cfg.Reasoning.APIKey)
	assert.Equal(t, "postgres://from-env/dealdesk", cfg.Database.URL)
}

func TestGetVaultConfigFromEnv_Disabled(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "")

	cfg := GetVaultConfigFromEnv()
	assert.False(t, cfg.Enabled)
}

func TestGetVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "http://vault.internal:8200")
	t.Setenv("VAULT_TOKEN", "tok")
	t.Setenv("VAULT_MOUNT_PATH", "")
	t.Setenv("VAULT_SECRET_PATH", "")

	cfg := GetVaultConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http://vault.internal:8200", cfg.Address)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "secret", cfg.MountPath)
	assert.Equal(t, "dealdesk/production", cfg.SecretPath)
}
