package main

import (
	"path/filepath"
	"time"

	"log/slog"

	"magpie/internal/broadcast"
	"magpie/internal/config"
	"magpie/internal/creds"
	"magpie/internal/daemon"
	"magpie/internal/handlers"
	"magpie/internal/jobs"
	"magpie/internal/ledger"
	"magpie/internal/platform"
)

func buildDaemon(cfg *config.Config, logger *slog.Logger, ledgerStore *ledger.Store) (*daemon.Daemon, error) {
	registry, err := platform.NewRegistry(platform.Builtin())
	if err != nil {
		return nil, err
	}

	credStore, err := creds.Open(cfg.Credentials.Path)
	if err != nil {
		return nil, err
	}

	client := handlers.NewHTTPClient(time.Duration(cfg.Downloads.RequestTimeout) * time.Second)
	handlerSet := handlers.NewSet(client, logger)
	hub := broadcast.NewHub(logger)
	orch := jobs.NewOrchestrator(cfg, registry, credStore, handlerSet, hub, ledgerStore, logger)

	return daemon.New(cfg, logger, registry, credStore, ledgerStore, hub, orch)
}

func buildSocketPath(cfg *config.Config) string {
	if cfg == nil {
		return filepath.Join("", "magpied.sock")
	}
	return filepath.Join(cfg.Paths.StateDir, "magpied.sock")
}
