package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/application/handlers"
)

type ingestFlags struct {
	format   string
	dryRun   bool
	noCreate bool
}

func newIngestCmd() *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest chat messages or stat snapshots",
		Long: `Stores dependent records from a JSON, YAML, or CSV file and links each to a member.

CSV columns: kind, external_id, raw_name, source, observed_at.
Records are keyed by (kind, external_id); re-ingesting a file refreshes names
without touching existing links.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "Input format (json, yaml, csv, auto)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate without saving")
	cmd.Flags().BoolVar(&flags.noCreate, "no-create", false, "Leave unknown names unresolved instead of creating members")

	return cmd
}

func runIngest(cmd *cobra.Command, filePath string, flags ingestFlags) error {
	return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
		opts := handlers.IngestOptions{
			Format: flags.format,
			DryRun: flags.dryRun,
			Link:   deps.LinkOptions(),
		}
		if flags.noCreate {
			opts.Link.CreateIdentities = false
		}

		result, err := deps.IngestHandler.Handle(ctx, filePath, opts)
		if err != nil {
			return fmt.Errorf("ingesting file: %w", err)
		}

		if flags.dryRun {
			fmt.Printf("Validated %d of %d records (dry run)\n", result.Valid, result.Parsed)
		} else if result.Report != nil {
			fmt.Printf("Stored %d records (%d new, %d updated)\n",
				result.Report.Inserted+result.Report.Updated, result.Report.Inserted, result.Report.Updated)
			printLinkReport(os.Stdout, result.Report.LinkReport)
		} else {
			fmt.Println("No valid records found.")
		}

		printImportErrors(os.Stdout, result.Errors)
		return nil
	})
}
