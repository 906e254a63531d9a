package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/claude"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/config"
	"github.com/papapumpkin/xployt/internal/pipeline"
)

// app holds everything a run needs, built once per command.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	collab  *collab.Client
	cache   cache.Store
	sqlite  *cache.SQLite // nil when the cache is disabled
	catalog *catalog.Catalog
	orch    *pipeline.Orchestrator
}

// buildApp validates the claude CLI, opens the content cache and catalog, and
// constructs the orchestrator. A cache that cannot be opened is disabled with
// a warning rather than failing the command.
func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	inv := &claude.Invoker{ClaudePath: cfg.ClaudePath, Verbose: cfg.Verbose, Logger: log}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("claude not available: %w", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	workDir, err := resolveWorkDir()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		collab:  collab.New(inv, cfg.CollabOptions(workDir, log)),
		catalog: cat,
	}
	a.openCache(ctx)
	a.orch = pipeline.New(a.collab,
		pipeline.WithCache(a.cache),
		pipeline.WithCatalog(cat),
		pipeline.WithLogger(log),
		pipeline.WithTelemetry(cfg.Telemetry),
	)
	return a, nil
}

func (a *app) openCache(ctx context.Context) {
	db, err := cache.Open(ctx, a.cfg.CacheFile())
	if err != nil {
		a.log.Warn("content cache disabled", "path", a.cfg.CacheFile(), "err", err)
		a.cache = cache.Disabled{}
		return
	}
	a.sqlite = db
	a.cache = db
}

// cacheStats reports the cache's size, or nil when it is disabled.
func (a *app) cacheStats() func(context.Context) (cache.Stats, error) {
	if a.sqlite == nil {
		return nil
	}
	return a.sqlite.Stats
}

func (a *app) Close() {
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.log.Warn("closing cache", "err", err)
		}
	}
}

// resolveWorkDir returns the directory collaborator calls run in.
func resolveWorkDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}
