package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ersonp/clanid/internal/application/handlers"
	"github.com/ersonp/clanid/internal/infrastructure/config"
	"github.com/ersonp/clanid/internal/infrastructure/relationaldb/sqlite"
)

func newClansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clans",
		Short: "Manage clans",
		RunE:  runClansList,
	}

	cmd.AddCommand(
		newClansListCmd(),
		newClansCreateCmd(),
		newClansDeleteCmd(),
	)

	return cmd
}

func newClansListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all clans",
		RunE:  runClansList,
	}
}

func runClansList(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	clans, err := config.LoadClans(cwd)
	if err != nil {
		return fmt.Errorf("loading clans: %w", err)
	}

	if len(clans.Clans) == 0 {
		fmt.Println("No clans configured.")
		fmt.Println("Use 'clanid clans create NAME' to create a clan.")
		return nil
	}

	fmt.Printf("%-20s %-40s %s\n", "NAME", "DATABASE", "DESCRIPTION")
	fmt.Printf("%-20s %-40s %s\n", "----", "--------", "-----------")

	for _, name := range clans.Names() {
		path, err := clans.DatabasePath(cwd, name)
		if err != nil {
			return err
		}
		if rel, err := filepath.Rel(cwd, path); err == nil {
			path = rel
		}
		fmt.Printf("%-20s %-40s %s\n", name, path, clans.Clans[name].Description)
	}

	return nil
}

func newClansCreateCmd() *cobra.Command {
	var (
		description string
		database    string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new clan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			path, err := createClan(cmd.Context(), cwd, args[0], config.ClanEntry{
				Description: description,
				Database:    database,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created clan %q (database %s)\n", args[0], path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Clan description")
	cmd.Flags().StringVar(&database, "database", "", "Database path (default: per-clan file under .clanid/clans)")

	return cmd
}

// createClan registers a clan and creates its database schema. The config
// is initialized first when missing.
func createClan(ctx context.Context, basePath, name string, entry config.ClanEntry) (string, error) {
	if !config.Exists(basePath) {
		if _, err := handlers.NewInitHandler(nil).Handle(ctx, basePath); err != nil {
			return "", fmt.Errorf("initializing config: %w", err)
		}
		fmt.Printf("Initialized clanid in %s\n", config.ConfigDir(basePath))
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}

	clans, err := config.LoadClans(basePath)
	if err != nil {
		return "", fmt.Errorf("loading clans: %w", err)
	}
	if clans.Exists(name) {
		return "", fmt.Errorf("clan %q already exists", name)
	}

	clans.Add(name, entry)
	path, err := clans.DatabasePath(basePath, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating clan directory: %w", err)
	}

	sqliteCfg := cfg.SQLite
	sqliteCfg.Path = path
	repo, err := sqlite.NewRepository(sqliteCfg)
	if err != nil {
		return "", fmt.Errorf("creating clan database: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return "", fmt.Errorf("creating schema: %w", err)
	}

	if err := clans.Save(basePath); err != nil {
		return "", err
	}

	return path, nil
}

func newClansDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a clan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			if err := deleteClan(cmd.Context(), cwd, args[0], force); err != nil {
				return err
			}

			fmt.Printf("Deleted clan %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete even if the clan has members")

	return cmd
}

// deleteClan removes a clan from the registry and deletes its default
// database directory. A clan with members needs force.
func deleteClan(ctx context.Context, basePath, name string, force bool) error {
	clans, err := config.LoadClans(basePath)
	if err != nil {
		return fmt.Errorf("loading clans: %w", err)
	}

	path, err := clans.DatabasePath(basePath, name)
	if err != nil {
		return err
	}

	if !force {
		if _, statErr := os.Stat(path); statErr == nil {
			count, err := countMembers(ctx, path)
			if err == nil && count > 0 {
				return fmt.Errorf("clan %q has %d members, use --force to delete", name, count)
			}
		}
	}

	entry := clans.Clans[name]
	if entry.Database == "" {
		if err := os.RemoveAll(config.ClanDir(basePath, name)); err != nil {
			fmt.Printf("Warning: could not delete clan directory: %v\n", err)
		}
	}

	clans.Remove(name)
	return clans.Save(basePath)
}

func countMembers(ctx context.Context, path string) (int, error) {
	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: path})
	if err != nil {
		return 0, err
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	return repo.CountMembers(ctx)
}
