// Package config loads runtime configuration: a YAML file resolved
// through Viper with DAYBOOK_* environment overrides on top.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys.
const (
	keyDatabasePath   = "database.path"
	keyTokenSecret    = "token.secret"
	keyTokenIssuer    = "token.issuer"
	keyTokenTTL       = "token.ttl"
	keySandboxEmails  = "sandbox.emails"
	keySandboxHandle  = "sandbox.handle"
	keySandboxCode    = "sandbox.code"
	keyAuditQueueSize = "audit.queue_size"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DatabasePath locates the SQLite file.
	DatabasePath string

	// TokenSecret signs session tokens. Required.
	TokenSecret string

	// TokenIssuer is the iss claim on minted tokens.
	TokenIssuer string

	// TokenTTL bounds session token lifetime.
	TokenTTL time.Duration

	// SandboxEmails, SandboxHandle, and SandboxCode configure the
	// passcode sandbox accepted without an external delivery.
	SandboxEmails []string
	SandboxHandle string
	SandboxCode   string

	// AuditQueueSize bounds the in-flight audit queue.
	AuditQueueSize int
}

// Load resolves configuration from an optional YAML file plus DAYBOOK_*
// environment variables. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault(keyDatabasePath, "daybook.db")
	v.SetDefault(keyTokenIssuer, "daybook")
	v.SetDefault(keyTokenTTL, 7*24*time.Hour)
	v.SetDefault(keyAuditQueueSize, 256)

	v.SetEnvPrefix("DAYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DatabasePath:   v.GetString(keyDatabasePath),
		TokenSecret:    v.GetString(keyTokenSecret),
		TokenIssuer:    v.GetString(keyTokenIssuer),
		TokenTTL:       v.GetDuration(keyTokenTTL),
		SandboxEmails:  v.GetStringSlice(keySandboxEmails),
		SandboxHandle:  v.GetString(keySandboxHandle),
		SandboxCode:    v.GetString(keySandboxCode),
		AuditQueueSize: v.GetInt(keyAuditQueueSize),
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token secret is not set (DAYBOOK_TOKEN_SECRET)")
	}
	if cfg.AuditQueueSize <= 0 {
		return nil, fmt.Errorf("audit queue size must be positive, got %d", cfg.AuditQueueSize)
	}
	return cfg, nil
}
