package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/application/handlers"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize clanid in the current directory",
		Long:  "Creates a .clanid directory with default configuration. Add clans with 'clanid clans create NAME'.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	result, err := handlers.NewInitHandler(nil).Handle(cmd.Context(), cwd)
	if err != nil {
		return err
	}

	fmt.Printf("Created %s\n", result.ConfigPath)
	fmt.Println("Use 'clanid clans create NAME' to add a clan.")

	return nil
}
