package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bulkctl",
		Short: "Administrative tasks for the bulk operation engine",
		Long: `bulkctl prints the Postgres schema for the bulk operation tables and runs
one-shot maintenance such as purging old terminal operations or minting
bearer tokens for operators.`,
		SilenceUsage: true,
	}

	root.AddCommand(newMigrateCommand())
	root.AddCommand(newPurgeCommand())
	root.AddCommand(newTokenCommand())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
