// Package main is the offline backfill: it replays the exchange's S3
// trade archive into per-minute feature rows for the ML consumers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hynous/hynous-data/internal/backfill"
	"github.com/hynous/hynous-data/internal/config"
	"github.com/hynous/hynous-data/internal/store"
	"github.com/hynous/hynous-data/internal/utils"
	"github.com/hynous/hynous-data/pkg/logger"
)

const dayLayout = "2006-01-02"

func main() {
	var (
		coinsFlag = flag.String("coins", "BTC,ETH", "comma-separated instruments to backfill")
		fromFlag  = flag.String("from", "", "first day to cover, YYYY-MM-DD")
		toFlag    = flag.String("to", "", "last day to cover (inclusive), YYYY-MM-DD")
		outFlag   = flag.String("out", "", "optional msgpack output file for the feature rows")
	)
	flag.Parse()

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

	coins := utils.ParseCSV(*coinsFlag)
	if len(coins) == 0 {
		log.Fatal().Msg("No coins given")
	}

	from, err := time.ParseInLocation(dayLayout, *fromFlag, time.UTC)
	if err != nil {
		log.Fatal().Str("from", *fromFlag).Msg("Invalid -from day, want YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(dayLayout, *toFlag, time.UTC)
	if err != nil {
		log.Fatal().Str("to", *toFlag).Msg("Invalid -to day, want YYYY-MM-DD")
	}
	if to.Before(from) {
		log.Fatal().Msg("-to is before -from")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()
	if err := st.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise schema")
	}

	archive, err := backfill.NewArchive(ctx, cfg.Backfill, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build archive client")
	}

	summary, err := backfill.NewRunner(archive, st, log).Run(ctx, coins, from, to, *outFlag)
	if err != nil {
		log.Error().Err(err).Msg("Backfill failed")
		os.Exit(1)
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("coins", summary.Coins).
		Int("objects", summary.Objects).
		Int("trades", summary.Trades).
		Int("rows", summary.Rows).
		Dur("duration", summary.Duration).
		Msg("Backfill complete")
}
