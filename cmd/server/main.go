// Package main is the entry point for the hynous market-intelligence
// pipeline: the trade stream, pollers and analytics engines plus the
// read-only HTTP API in front of them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hynous/hynous-data/internal/app"
	"github.com/hynous/hynous-data/internal/config"
	"github.com/hynous/hynous-data/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Pretty:     cfg.LogPretty,
		TimeFormat: cfg.LogTimeFormat,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("api_url", cfg.APIURL).
		Str("db_path", cfg.DBPath()).
		Msg("Starting hynous-data")

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Pipeline exited with error")
		os.Exit(1)
	}

	log.Info().Msg("Shutdown complete")
}
