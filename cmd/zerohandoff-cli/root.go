package main

import (
	"github.com/spf13/cobra"

	"github.com/zerohandoff/zhc-plane/internal/bootstrap"
)

// plane is the shared Registry/Router handle, opened once in
// PersistentPreRunE and closed in PersistentPostRun. Cobra runs every leaf
// command through the same root process, so a package-level handle avoids
// re-deriving it per subcommand.
var plane *bootstrap.Plane

var jsonOutput bool
var configPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zerohandoff-cli",
		Short: "CLI for the supervised task control plane",
		Long:  "A command-line tool for operating the task registry and router directly against their storage backend.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// help/completion commands don't need a database connection.
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			p, err := bootstrap.New(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			plane = p
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if plane != nil {
				plane.Close()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON instead of a human-readable table")

	cmd.AddCommand(newRegistryCommand())
	cmd.AddCommand(newRouterCommand())
	cmd.AddCommand(newOpsCommand())

	return cmd
}
