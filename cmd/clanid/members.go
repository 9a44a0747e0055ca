package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/domain/entities"
)

func newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List and manage members",
	}

	cmd.AddCommand(
		newMembersListCmd(),
		newMembersShowCmd(),
		newMembersStatusCmd("depart", entities.StatusDeparted, "Mark a member as departed"),
		newMembersStatusCmd("activate", entities.StatusActive, "Mark a member as active again"),
	)

	return cmd
}

func newMembersListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				members, err := deps.MemberHandler.List(ctx, entities.MemberStatus(status), limit, offset)
				if err != nil {
					return fmt.Errorf("listing members: %w", err)
				}
				if len(members) == 0 {
					fmt.Println("No members found.")
					return nil
				}

				fmt.Printf("%-8s %-30s %-9s %s\n", "ID", "DISPLAY NAME", "STATUS", "LAST SEEN")
				for _, m := range members {
					fmt.Printf("%-8d %-30s %-9s %s\n", m.ID, m.DisplayName, m.Status, m.LastSeenAt.Format("2006-01-02"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (active, departed)")
	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultListLimit, "Maximum number of members to display")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many members")

	return cmd
}

func newMembersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id-or-name>",
		Short: "Show a member with aliases and recent records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				detail, err := deps.MemberHandler.Show(ctx, args[0])
				if err != nil {
					return err
				}

				m := detail.Member
				fmt.Printf("%s #%d %s\n", cyan("Member"), m.ID, m.DisplayName)
				fmt.Printf("  Status:    %s\n", m.Status)
				fmt.Printf("  Last seen: %s\n", m.LastSeenAt.Format("2006-01-02 15:04"))
				fmt.Printf("  Created:   %s\n\n", m.CreatedAt.Format("2006-01-02 15:04"))

				displayAliases(detail.Aliases)

				if len(detail.Records) > 0 {
					fmt.Printf("\nRecent records:\n")
					for _, r := range detail.Records {
						fmt.Printf("  %-14s %-20s %q %s\n", r.Kind, r.ExternalID, r.RawName, r.ObservedAt.Format("2006-01-02"))
					}
				}
				return nil
			})
		},
	}
}

func newMembersStatusCmd(use string, status entities.MemberStatus, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id-or-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Deps) error {
				m, err := deps.MemberHandler.SetStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				fmt.Printf("Member #%d %s is now %s\n", m.ID, m.DisplayName, m.Status)
				return nil
			})
		},
	}
}
