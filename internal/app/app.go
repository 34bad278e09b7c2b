// Package app is the composition root: it builds the store, the audit
// recorder, and every service from a resolved configuration. The harness,
// the CLI, and an eventual transport layer all assemble the system
// through it.
package app

import (
	"log/slog"

	"github.com/daybook-app/daybook/internal/audit"
	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/identity"
	"github.com/daybook-app/daybook/internal/planning"
	"github.com/daybook-app/daybook/internal/sharing"
	"github.com/daybook-app/daybook/internal/store"
)

// App holds the wired system.
type App struct {
	Store    *store.Store
	Audit    *audit.Recorder
	Planning *planning.Service
	Sharing  *sharing.Service
	Identity *identity.Service
}

// New opens the store and wires every service from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	rec := audit.NewRecorder(st, logger, cfg.AuditQueueSize)
	tokens := identity.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenIssuer, cfg.TokenTTL)
	passcode := &identity.SandboxProvider{
		Emails: cfg.SandboxEmails,
		Handle: cfg.SandboxHandle,
		Code:   cfg.SandboxCode,
	}

	return &App{
		Store:    st,
		Audit:    rec,
		Planning: planning.NewService(st, logger, rec),
		Sharing:  sharing.NewService(st, logger, rec),
		Identity: identity.NewService(st, logger, rec, passcode, tokens),
	}, nil
}

// Close drains the audit queue and closes the store.
func (a *App) Close() error {
	a.Audit.Close()
	return a.Store.Close()
}
