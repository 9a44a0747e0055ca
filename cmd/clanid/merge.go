package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/application/handlers"
	"github.com/ersonp/clanid/internal/domain/services"
)

type mergeFlags struct {
	plan   string
	format string
	dryRun bool
}

func newMergeCmd() *cobra.Command {
	var flags mergeFlags

	cmd := &cobra.Command{
		Use:   "merge [<keep-id> <absorb-id>]",
		Short: "Merge duplicate members",
		Long: `Folds the absorbed member into the kept one: aliases move, linked records are
re-pointed, and the absorbed member is deleted, all in one transaction.
A relink pass follows so names that now resolve get linked.

Pass a pair of IDs, or --plan with a file of keep/absorb pairs
(CSV columns: keep, absorb). Each pair merges independently.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.plan != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.plan != "" {
				return runMergePlan(cmd, flags)
			}
			return runMergePair(cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&flags.plan, "plan", "p", "", "Merge plan file")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "Plan format (json, yaml, csv, auto)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate the plan without merging")

	return cmd
}

func parseMemberIDs(keep, absorb string) (int64, int64, error) {
	keepID, err := strconv.ParseInt(keep, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid keep ID %q", keep)
	}
	absorbID, err := strconv.ParseInt(absorb, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid absorb ID %q", absorb)
	}
	return keepID, absorbID, nil
}

func runMergePair(cmd *cobra.Command, keep, absorb string) error {
	keepID, absorbID, err := parseMemberIDs(keep, absorb)
	if err != nil {
		return err
	}

	return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
		report, err := deps.MergeHandler.HandlePair(ctx, keepID, absorbID, deps.LinkOptions())
		if err != nil {
			return err
		}
		printMergePlanReport(report)
		return nil
	})
}

func runMergePlan(cmd *cobra.Command, flags mergeFlags) error {
	return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
		result, err := deps.MergeHandler.HandlePlan(ctx, flags.plan, handlers.MergePlanOptions{
			Format: flags.format,
			DryRun: flags.dryRun,
			Relink: deps.LinkOptions(),
		})
		if result != nil && len(result.Errors) > 0 {
			printImportErrors(os.Stdout, result.Errors)
			return errors.New("merge plan has invalid rows; nothing was merged")
		}
		if err != nil {
			if result != nil && result.Report != nil {
				printMergePlanReport(result.Report)
			}
			return err
		}

		if flags.dryRun {
			fmt.Printf("Plan is valid: %d pairs (dry run)\n", len(result.Pairs))
			return nil
		}
		if result.Report == nil {
			fmt.Println("Plan is empty.")
			return nil
		}
		printMergePlanReport(result.Report)
		return nil
	})
}

func printMergePlanReport(report *services.MergePlanReport) {
	for _, m := range report.Merged {
		fmt.Printf("%s #%d %s into #%d: %d aliases moved, %d discarded, %d records relinked\n",
			green("Merged"), m.AbsorbID, m.AbsorbName, m.KeepID, m.AliasesMoved, m.AliasesDiscarded, m.RecordsRelinked)
	}
	for _, f := range report.Failed {
		fmt.Printf("%s %d into %d: %s\n", red("Failed"), f.Pair.AbsorbID, f.Pair.KeepID, f.Message)
	}
	if report.Relink != nil {
		fmt.Println()
		printLinkReport(os.Stdout, report.Relink)
	}
}

func newDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List members that may be the same person",
		Long:  "Flags member pairs whose display names or aliases normalize to the same key. Nothing is merged automatically.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				candidates, err := deps.MergeHandler.Duplicates(ctx)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					fmt.Println("No duplicate candidates.")
					return nil
				}

				for _, c := range candidates {
					fmt.Printf("#%d %s  <->  #%d %s  [%s]", c.MemberA, c.NameA, c.MemberB, c.NameB, reasonList(c.Reasons))
					if len(c.SharedKeys) > 0 {
						fmt.Printf(" %s", gray(strings.Join(c.SharedKeys, ", ")))
					}
					fmt.Println()
				}
				fmt.Printf("\n%d candidates. Merge with 'clanid merge KEEP ABSORB'.\n", len(candidates))
				return nil
			})
		},
	}
}
