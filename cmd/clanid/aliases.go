package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/domain/entities"
)

func newAliasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "Manage member aliases",
	}

	cmd.AddCommand(
		newAliasesImportCmd(),
		newAliasesAddCmd(),
		newAliasesListCmd(),
	)

	return cmd
}

func newAliasesImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Apply an alias list of known name changes",
		Long: `Maps historical raw names to members by display name.

CSV columns: raw_name, display_name, source. An empty source applies the
alias to every source. Aliases already owned by another member are reported
and left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				result, err := deps.AliasHandler.HandleFile(ctx, args[0], format)
				if err != nil {
					return fmt.Errorf("applying alias list: %w", err)
				}

				fmt.Printf("Created %s, refreshed %d", green(result.Created), result.Refreshed)
				if result.Conflicts > 0 {
					fmt.Printf(", %s", yellow(fmt.Sprintf("%d conflicts", result.Conflicts)))
				}
				fmt.Println()
				printImportErrors(os.Stdout, result.Errors)

				if result.Created > 0 {
					fmt.Println("Run 'clanid relink' to link records that now resolve.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "auto", "Input format (json, yaml, csv, auto)")

	return cmd
}

func newAliasesAddCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "add <member-id> <raw-name>",
		Short: "Record a raw name as a member's alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid member ID %q", args[0])
			}
			src, err := entities.ParseSource(source)
			if err != nil {
				return err
			}

			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				outcome, err := deps.AliasHandler.Add(ctx, memberID, args[1], src)
				if err != nil {
					return err
				}
				fmt.Printf("Alias %q (%s) %s for member %d\n", args[1], src, outcome, memberID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "stats", "Source the name belongs to (stats, chat)")

	return cmd
}

func newAliasesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <member-id>",
		Short: "List a member's aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid member ID %q", args[0])
			}

			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				aliases, err := deps.AliasHandler.List(ctx, memberID)
				if err != nil {
					return err
				}
				displayAliases(aliases)
				return nil
			})
		},
	}
}

func displayAliases(aliases []entities.Alias) {
	if len(aliases) == 0 {
		fmt.Println("No aliases.")
		return
	}

	fmt.Printf("%-6s %-25s %-20s %-10s %s\n", "SOURCE", "RAW NAME", "KEY", "PREFERRED", "LAST SEEN")
	for _, a := range aliases {
		preferred := ""
		if a.Preferred {
			preferred = "yes"
		}
		fmt.Printf("%-6s %-25s %-20s %-10s %s\n", a.Source, a.RawName, a.NormalizedKey, preferred, a.LastSeenAt.Format("2006-01-02"))
	}
}
