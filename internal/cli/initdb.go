package cli

import (
	"github.com/spf13/cobra"

	"github.com/daybook-app/daybook/internal/store"
)

// NewInitDBCommand creates the initdb command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "initdb <database-path>",
		Short: "Create or migrate a daybook database",
		Long: `Create a daybook database at the given path, applying the embedded
schema. Running against an existing database applies any pending
migrations and is otherwise a no-op.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDB(rootOpts, args[0], cmd)
		},
	}
}

func runInitDB(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	return formatter.Success(map[string]string{"path": path}, "database ready: "+path)
}
