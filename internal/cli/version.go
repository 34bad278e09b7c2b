package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daybook version",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:  rootOpts.Format,
				Writer:  cmd.OutOrStdout(),
				Verbose: rootOpts.Verbose,
			}
			version := Version
			if version == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					version = info.Main.Version
				}
			}
			return formatter.Success(map[string]string{"version": version},
				fmt.Sprintf("daybook %s", version))
		},
	}
}
