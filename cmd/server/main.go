package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gatekeeper/internal/app"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/logger"
)

// main loads configuration, assembles the service and runs it until SIGINT
// or SIGTERM. Wiring lives in internal/app.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("error").Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing gatekeeper",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
	)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}
