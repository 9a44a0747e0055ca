package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ersonp/clanid/internal/domain/services"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// printLinkReport writes a link pass summary.
func printLinkReport(w io.Writer, report *services.LinkReport) {
	fmt.Fprintf(w, "%s %s\n", cyan("Run"), report.RunID)
	fmt.Fprintf(w, "  Scanned:        %d\n", report.Scanned)
	fmt.Fprintf(w, "  Linked:         %s\n", green(report.Linked))
	if report.Created > 0 {
		fmt.Fprintf(w, "  New members:    %d\n", report.Created)
	}
	if report.AlreadyLinked > 0 {
		fmt.Fprintf(w, "  Already linked: %d\n", report.AlreadyLinked)
	}
	if report.Repaired > 0 {
		fmt.Fprintf(w, "  Repaired:       %d\n", report.Repaired)
	}
	if report.Unresolved > 0 {
		fmt.Fprintf(w, "  Unresolved:     %s\n", yellow(report.Unresolved))
	}
	if report.Ambiguous > 0 {
		fmt.Fprintf(w, "  Ambiguous:      %s\n", yellow(report.Ambiguous))
	}
	if report.EmptyName > 0 {
		fmt.Fprintf(w, "  Empty names:    %s\n", gray(report.EmptyName))
	}
	if len(report.Errors) > 0 {
		fmt.Fprintf(w, "  Errors:         %s\n", red(len(report.Errors)))
		for _, e := range report.Errors {
			fmt.Fprintf(w, "    record %d (%q): %s\n", e.RecordID, e.RawName, e.Message)
		}
	}
	if report.Partial {
		fmt.Fprintf(w, "%s pass stopped early; run 'clanid relink' to resume\n", yellow("Partial:"))
	}
}

// printImportErrors writes per-row validation errors.
func printImportErrors(w io.Writer, errs []services.ImportError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", red("Errors"), len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}
