package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"magpie/internal/config"
	"magpie/internal/ipc"
	"magpie/internal/ledger"
	"magpie/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(os.Getenv("MAGPIE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ledgerStore, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger store", logging.Error(err))
		return
	}

	d, err := buildDaemon(cfg, logger, ledgerStore)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		ledgerStore.Close()
		return
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, buildSocketPath(cfg), d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Warn("daemon start", logging.Error(err))
	}

	<-ctx.Done()
	logger.Info("magpied shutting down")
}
