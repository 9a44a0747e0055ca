package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ersonp/clanid/internal/application/handlers"
	"github.com/ersonp/clanid/internal/domain/services"
	"github.com/ersonp/clanid/internal/infrastructure/config"
	"github.com/ersonp/clanid/internal/infrastructure/logging"
	"github.com/ersonp/clanid/internal/infrastructure/relationaldb/sqlite"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config        *config.Config
	Logger        zerolog.Logger
	IngestHandler *handlers.IngestHandler
	LinkHandler   *handlers.LinkHandler
	MergeHandler  *handlers.MergeHandler
	AliasHandler  *handlers.AliasHandler
	MemberHandler *handlers.MemberHandler
	AuditHandler  *handlers.AuditHandler
}

// LinkOptions returns the configured link options.
func (d *Deps) LinkOptions() services.LinkOptions {
	return services.LinkOptions{
		CreateIdentities: d.Config.Linker.CreateIdentities,
		BatchSize:        d.Config.Linker.BatchSize,
		Workers:          d.Config.Linker.Workers,
	}
}

// withDeps loads config, opens the clan database, and builds handlers,
// then calls the provided function. It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(context.Context, *Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog := newLogger(cfg)
	defer func() { _ = closeLog() }()

	dbPath, err := clanDatabasePath(cwd, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating clan directory: %w", err)
	}

	ctx = logging.WithClan(logging.WithLogger(ctx, logger), globalClan)
	logger = logging.FromContext(ctx)

	sqliteCfg := cfg.SQLite
	sqliteCfg.Path = dbPath
	repo, err := sqlite.NewRepository(sqliteCfg, sqlite.WithRetry(cfg.Store), sqlite.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening clan database: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	matcher := services.NewMatcherService(repo, services.MatcherOptions{
		SuggestThreshold: cfg.Matching.SuggestThreshold,
		AmbiguityMargin:  cfg.Matching.AmbiguityMargin,
		SuggestLimit:     cfg.Matching.SuggestLimit,
	})
	linker := services.NewLinkerService(repo, repo, matcher, logger)
	merger := services.NewMergerService(repo, linker, logger)
	aliasList := services.NewAliasListService(repo, logger)
	audit := services.NewAuditService(repo, matcher, merger)

	deps := &Deps{
		Config:        cfg,
		Logger:        logger,
		IngestHandler: handlers.NewIngestHandler(linker),
		LinkHandler:   handlers.NewLinkHandler(linker, matcher),
		MergeHandler:  handlers.NewMergeHandler(merger),
		AliasHandler:  handlers.NewAliasHandler(aliasList, repo),
		MemberHandler: handlers.NewMemberHandler(repo, repo),
		AuditHandler:  handlers.NewAuditHandler(audit),
	}

	return fn(ctx, deps)
}

// clanDatabasePath picks the database for the selected clan. An explicit
// sqlite.path (or CLANID_DB) wins over the clan registry.
func clanDatabasePath(basePath string, cfg *config.Config) (string, error) {
	if cfg.SQLite.Path != "" {
		if filepath.IsAbs(cfg.SQLite.Path) {
			return cfg.SQLite.Path, nil
		}
		return filepath.Join(basePath, cfg.SQLite.Path), nil
	}

	if globalClan == "" {
		return "", errors.New("clan is required (use --clan flag)")
	}

	clans, err := config.LoadClans(basePath)
	if err != nil {
		return "", fmt.Errorf("loading clans: %w", err)
	}
	return clans.DatabasePath(basePath, globalClan)
}

func newLogger(cfg *config.Config) (zerolog.Logger, func() error) {
	logCfg := logging.DefaultConfig()
	if cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" {
		logCfg.Output = cfg.Log.Output
	}
	if globalLogLevel != "" {
		logCfg.Level = globalLogLevel
	}
	if globalVerbose {
		logCfg.Level = "debug"
	}
	return logging.New(logCfg)
}
