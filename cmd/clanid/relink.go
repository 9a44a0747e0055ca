package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/domain/entities"
)

type relinkFlags struct {
	source    string
	workers   int
	batchSize int
	timeout   time.Duration
	noCreate  bool
}

func newRelinkCmd() *cobra.Command {
	var flags relinkFlags

	cmd := &cobra.Command{
		Use:   "relink",
		Short: "Link unlinked and orphaned records",
		Long: `Runs a batch pass over every record without a member, or whose member no
longer exists. The pass is idempotent and resumable: an interrupted run
reports what it did, and running it again continues where it stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelink(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.source, "source", "s", "", "Only relink records from this source (stats, chat)")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Parallel workers, one per source (default from config)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Records per page (default from config)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Stop the pass after this long (0 = no limit)")
	cmd.Flags().BoolVar(&flags.noCreate, "no-create", false, "Leave unknown names unresolved instead of creating members")

	return cmd
}

func runRelink(cmd *cobra.Command, flags relinkFlags) error {
	var source entities.Source
	if flags.source != "" {
		s, err := entities.ParseSource(flags.source)
		if err != nil {
			return err
		}
		source = s
	}

	ctx := cmd.Context()
	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	return withDeps(ctx, func(ctx context.Context, deps *Deps) error {
		opts := deps.LinkOptions()
		opts.Source = source
		if flags.workers > 0 {
			opts.Workers = flags.workers
		}
		if flags.batchSize > 0 {
			opts.BatchSize = flags.batchSize
		}
		if flags.noCreate {
			opts.CreateIdentities = false
		}

		report, err := deps.LinkHandler.Relink(ctx, opts)
		if err != nil {
			return fmt.Errorf("relinking: %w", err)
		}

		printLinkReport(os.Stdout, report)
		return nil
	})
}
