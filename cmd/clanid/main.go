// Package main provides the entry point for the clanid CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version        = "0.1.0-dev"
	globalClan     string
	globalLogLevel string
	globalVerbose  bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "clanid",
		Short:         "Reconcile clan member identities across chat and stats exports",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalClan, "clan", "c", "", "Clan to operate on (required for most commands)")
	rootCmd.PersistentFlags().StringVar(&globalLogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(
		newInitCmd(),
		newClansCmd(),
		newIngestCmd(),
		newRelinkCmd(),
		newResolveCmd(),
		newSuggestCmd(),
		newAliasesCmd(),
		newMembersCmd(),
		newDuplicatesCmd(),
		newMergeCmd(),
		newAuditCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
