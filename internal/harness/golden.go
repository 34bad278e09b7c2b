package harness

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/daybook-app/daybook/internal/config"
)

// TestConfig returns a configuration for scenario runs: in-memory store
// and a sandbox accepting the given addresses.
func TestConfig(sandboxEmails []string) *config.Config {
	return &config.Config{
		DatabasePath:   ":memory:",
		TokenSecret:    "harness-secret",
		TokenIssuer:    "daybook-harness",
		TokenTTL:       time.Hour,
		SandboxEmails:  sandboxEmails,
		SandboxHandle:  "harness-handle",
		SandboxCode:    "000000",
		AuditQueueSize: 16,
	}
}

// RunWithGolden executes the scenario at path and compares the final
// state snapshot against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, path string, cfg *config.Config) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}

	snapshot, err := Run(scenario, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}
