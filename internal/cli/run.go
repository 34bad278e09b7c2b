package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/harness"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against a fresh in-memory system",
		Long: `Execute a YAML scenario through the wired services and print the final
state snapshot. The system is assembled from configuration (file via
--config plus DAYBOOK_* environment variables) with the database forced
to in-memory, so runs never touch real data.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(rootOpts, configPath, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file path")
	return cmd
}

func runScenario(opts *RootOptions, configPath, scenarioPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	cfg.DatabasePath = ":memory:"

	scenario, err := harness.LoadScenario(scenarioPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load scenario", err)
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	snapshot, err := harness.Run(scenario, cfg, logger)
	if err != nil {
		return formatter.Failure(ExitFailure, nil, fmt.Sprintf("scenario %s failed: %v", scenario.Name, err))
	}

	if opts.Format == "json" {
		return formatter.Success(snapshot, "")
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
