package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults tests that only the secret is required and the rest
// falls back to defaults.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DAYBOOK_TOKEN_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "daybook.db", cfg.DatabasePath)
	assert.Equal(t, "env-secret", cfg.TokenSecret)
	assert.Equal(t, "daybook", cfg.TokenIssuer)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 256, cfg.AuditQueueSize)
}

// TestLoad_MissingSecret tests that an absent secret fails loading.
func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("DAYBOOK_TOKEN_SECRET", "")

	_, err := Load("")
	assert.Error(t, err)
}

// TestLoad_File tests YAML file loading with an environment override on
// top of it.
func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daybook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/test.db
token:
  secret: file-secret
  ttl: 1h
sandbox:
  emails: ["dev@example.com"]
  handle: h-1
  code: "123456"
audit:
  queue_size: 16
`), 0o644))
	t.Setenv("DAYBOOK_TOKEN_ISSUER", "daybook-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "file-secret", cfg.TokenSecret)
	assert.Equal(t, "daybook-test", cfg.TokenIssuer)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"dev@example.com"}, cfg.SandboxEmails)
	assert.Equal(t, "h-1", cfg.SandboxHandle)
	assert.Equal(t, "123456", cfg.SandboxCode)
	assert.Equal(t, 16, cfg.AuditQueueSize)
}
