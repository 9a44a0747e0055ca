package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/domain/entities"
)

func newResolveCmd() *cobra.Command {
	var (
		source string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Look up which member a raw name belongs to",
		Long:  "Resolves a raw name by exact alias only. When it does not resolve, fuzzy suggestions are shown for review; nothing is written.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := entities.ParseSource(source)
			if err != nil {
				return err
			}

			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				result, err := deps.LinkHandler.Resolve(ctx, args[0], src)
				if err != nil {
					return err
				}

				if asJSON {
					encoder := json.NewEncoder(os.Stdout)
					encoder.SetIndent("", "  ")
					return encoder.Encode(result)
				}

				if result.Match.IsResolved() {
					fmt.Printf("%s %q -> member %d (%s)\n", green("Resolved"), result.RawName, result.Match.MemberID, result.Match.Via)
					return nil
				}

				fmt.Printf("%s %q (key %q)\n", yellow("Unresolved"), result.RawName, result.Match.Key)
				if result.Ambiguous {
					fmt.Println("Several candidates are equally close; confirm with 'clanid aliases add'.")
				}
				printSuggestions(result.Suggestions)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "stats", "Source the name came from (stats, chat)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <name>",
		Short: "Rank members whose names resemble a raw name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				suggestions, err := deps.LinkHandler.Suggest(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if len(suggestions) == 0 {
					fmt.Println("No similar members found.")
					return nil
				}
				printSuggestions(suggestions)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultSuggestLimit, "Maximum number of suggestions")

	return cmd
}

func printSuggestions(suggestions []entities.Suggestion) {
	for i, s := range suggestions {
		fmt.Printf("  %d. #%d %s (via %q, %.0f%%)\n", i+1, s.MemberID, s.DisplayName, s.Alias, s.Confidence*100)
	}
}
