package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/collate-ai/collate/internal/config"
	"github.com/collate-ai/collate/internal/dispatch"
	"github.com/collate-ai/collate/internal/documents"
	"github.com/collate-ai/collate/internal/engine"
	"github.com/collate-ai/collate/internal/infrastructure"
	"github.com/collate-ai/collate/internal/providers"
	"github.com/collate-ai/collate/internal/runs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed:", err)
	}
	if err := cfg.Providers.Validate(); err != nil {
		log.Fatal("provider config invalid:", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		log.Fatal("infrastructure init failed:", err)
	}
	logger := infra.Logger

	logger.Info("collate worker starting",
		"version", cfg.Version,
		"env", cfg.Env(),
		"providers", cfg.Providers.Enabled(),
	)

	if err := infra.Start(); err != nil {
		log.Fatal("infrastructure start failed:", err)
	}
	infra.Lifecycle.WaitForStartup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := providers.BuildRegistry(ctx, cfg.Providers.Map(), logger)
	if err != nil {
		log.Fatal("provider construction failed:", err)
	}

	dispatcher := dispatch.New(registry, &cfg.Dispatch, registry.Names(), logger)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("dispatcher start failed:", err)
	}

	loader := documents.NewLoader(infra.Storage, cfg.Documents.MaxSizeBytes(), logger)
	store := runs.New(infra.Database.Connection(), logger, cfg.Pagination)
	eng := engine.New(store, dispatcher, loader, registry, &cfg.Engine, logger)

	if err := eng.Resume(ctx); err != nil {
		logger.Error("resume sweep failed", "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-done:
		logger.Error("claim loop exited", "error", err)
	}

	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer drainCancel()
	if err := dispatcher.Stop(drainCtx); err != nil {
		logger.Error("dispatcher drain failed", "error", err)
	}

	if err := infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration()); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}

	logger.Info("collate worker stopped")
}
