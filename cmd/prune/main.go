// Package main provides the entry point for the prune CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/prune/cmd/prune/commands"
	"github.com/Sumatoshi-tech/prune/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prune",
		Short: "Structural cleanup of stale feature flags",
		Long: `prune removes stale feature flags from source code by applying a graph of
structural rewrite rules until the code reaches a fixed point.

Commands:
  run       Rewrite source files
  validate  Check rule files
  graph     Print the rule graph`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewGraphCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitCode(err))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
