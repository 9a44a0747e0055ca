package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/services"
)

type auditFlags struct {
	format string
	output string
	limit  int
}

func newAuditCmd() *cobra.Command {
	var flags auditFlags

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report unresolved names, duplicates, and orphaned records",
		Long:  "Builds an operator report: unresolved names (most frequent first) with candidates, duplicate candidates, orphaned records, and totals.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "text", "Output format (text, json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", DefaultAuditLimit, "Maximum rows per section (0 = all)")

	return cmd
}

func runAudit(cmd *cobra.Command, flags auditFlags) error {
	if !contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}

	return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
		report, err := deps.AuditHandler.Handle(ctx, flags.limit)
		if err != nil {
			return fmt.Errorf("building audit report: %w", err)
		}
		return writeAudit(report, flags.format, flags.output)
	})
}

func writeAudit(report *services.AuditReport, format, output string) (err error) {
	var w io.Writer
	var f *os.File

	if output != "" {
		f, err = os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	} else {
		w = os.Stdout
	}

	if err := formatAudit(w, report, format); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if output != "" {
		fmt.Printf("Wrote audit report to %s\n", output)
	}

	return nil
}

func formatAudit(w io.Writer, report *services.AuditReport, format string) error {
	switch format {
	case "text":
		return formatAuditText(w, report)
	case "json":
		return formatAuditJSON(w, report)
	case "csv":
		return formatAuditCSV(w, report)
	case "markdown":
		return formatAuditMarkdown(w, report)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func formatAuditJSON(w io.Writer, report *services.AuditReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// formatAuditCSV writes the unresolved names, the section operators work
// through in a spreadsheet.
func formatAuditCSV(w io.Writer, report *services.AuditReport) error {
	writer := csv.NewWriter(w)

	header := []string{"normalized_key", "source", "raw_name", "occurrences", "ambiguous", "candidates", "last_seen_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, u := range report.Unresolved {
		row := []string{
			u.NormalizedKey,
			string(u.Source),
			u.RawName,
			strconv.Itoa(u.Occurrences),
			strconv.FormatBool(u.Ambiguous),
			candidateList(u.Candidates),
			u.LastSeenAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatAuditMarkdown(w io.Writer, report *services.AuditReport) error {
	t := report.Totals
	if _, err := fmt.Fprintf(w, "# Identity Audit\n\nGenerated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04 MST")); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "| Members | Active | Aliases | Records | Linked | Unresolved | Duplicates | Orphaned |\n"+
		"|---------|--------|---------|---------|--------|------------|------------|----------|\n"+
		"| %d | %d | %d | %d | %d | %d | %d | %d |\n\n",
		t.Members, t.ActiveMembers, t.Aliases, t.Records, t.LinkedRecords, t.Unresolved, t.Duplicates, t.Orphaned); err != nil {
		return err
	}

	if len(report.Unresolved) > 0 {
		if _, err := fmt.Fprint(w, "## Unresolved Names\n\n| Name | Source | Seen | Candidates |\n|------|--------|------|------------|\n"); err != nil {
			return err
		}
		for _, u := range report.Unresolved {
			name := escapeMarkdown(u.RawName)
			if u.Ambiguous {
				name += " (ambiguous)"
			}
			if _, err := fmt.Fprintf(w, "| %s | %s | %d | %s |\n", name, u.Source, u.Occurrences, escapeMarkdown(candidateList(u.Candidates))); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if len(report.Duplicates) > 0 {
		if _, err := fmt.Fprint(w, "## Duplicate Candidates\n\n| Member A | Member B | Reasons |\n|----------|----------|---------|\n"); err != nil {
			return err
		}
		for _, d := range report.Duplicates {
			if _, err := fmt.Fprintf(w, "| #%d %s | #%d %s | %s |\n",
				d.MemberA, escapeMarkdown(d.NameA), d.MemberB, escapeMarkdown(d.NameB), reasonList(d.Reasons)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if len(report.Orphans) > 0 {
		if _, err := fmt.Fprint(w, "## Orphaned Records\n\n| Record | Kind | Name | Missing Member |\n|--------|------|------|----------------|\n"); err != nil {
			return err
		}
		for _, r := range report.Orphans {
			if _, err := fmt.Fprintf(w, "| %d | %s | %s | %d |\n", r.ID, r.Kind, escapeMarkdown(r.RawName), derefID(r.MemberID)); err != nil {
				return err
			}
		}
	}

	return nil
}

func formatAuditText(w io.Writer, report *services.AuditReport) error {
	t := report.Totals
	fmt.Fprintf(w, "%s\n", cyan("Totals"))
	fmt.Fprintf(w, "  Members:    %d (%d active)\n", t.Members, t.ActiveMembers)
	fmt.Fprintf(w, "  Aliases:    %d\n", t.Aliases)
	fmt.Fprintf(w, "  Records:    %d (%s linked)\n", t.Records, green(t.LinkedRecords))
	fmt.Fprintf(w, "  Unresolved: %s\n", yellow(t.Unresolved))
	fmt.Fprintf(w, "  Duplicates: %s\n", yellow(t.Duplicates))
	fmt.Fprintf(w, "  Orphaned:   %s\n", red(t.Orphaned))

	if len(report.Unresolved) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Unresolved names"))
		for _, u := range report.Unresolved {
			label := ""
			if u.Ambiguous {
				label = " " + yellow("ambiguous")
			}
			fmt.Fprintf(w, "  %-25s %-5s x%-4d%s %s\n", u.RawName, u.Source, u.Occurrences, label, gray(candidateList(u.Candidates)))
		}
	}

	if len(report.Duplicates) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Duplicate candidates"))
		for _, d := range report.Duplicates {
			fmt.Fprintf(w, "  #%d %s <-> #%d %s [%s]\n", d.MemberA, d.NameA, d.MemberB, d.NameB, reasonList(d.Reasons))
		}
	}

	if len(report.Orphans) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Orphaned records"))
		for _, r := range report.Orphans {
			fmt.Fprintf(w, "  record %d %q -> missing member %d\n", r.ID, r.RawName, derefID(r.MemberID))
		}
	}

	if len(report.RecentMerges) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Recent merges"))
		for _, m := range report.RecentMerges {
			fmt.Fprintf(w, "  %s #%d %s into #%d\n", m.MergedAt.Format("2006-01-02"), m.AbsorbID, m.AbsorbName, m.KeepID)
		}
	}

	return nil
}

func candidateList(candidates []entities.Suggestion) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("#%d %s (%.2f)", c.MemberID, c.DisplayName, c.Confidence))
	}
	return strings.Join(parts, "; ")
}

func reasonList(reasons []entities.DuplicateReason) string {
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ", ")
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
