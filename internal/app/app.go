// Package app wires the collectors, engines, store, and HTTP server into
// one process and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/buffers"
	"github.com/hynous/hynous-data/internal/clients/hyperliquid"
	"github.com/hynous/hynous-data/internal/config"
	"github.com/hynous/hynous-data/internal/modules/heatmap"
	"github.com/hynous/hynous-data/internal/modules/hlp"
	"github.com/hynous/hynous-data/internal/modules/orderflow"
	"github.com/hynous/hynous-data/internal/modules/poller"
	"github.com/hynous/hynous-data/internal/modules/smartmoney"
	"github.com/hynous/hynous-data/internal/modules/stream"
	"github.com/hynous/hynous-data/internal/modules/tracker"
	"github.com/hynous/hynous-data/internal/modules/whales"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/scheduler"
	"github.com/hynous/hynous-data/internal/server"
	"github.com/hynous/hynous-data/internal/store"
)

// tradeBufferCapacity bounds each instrument's in-memory trade ring.
const tradeBufferCapacity = 10000

// featureRetentionDays keeps backfill feature rows far longer than the
// live series; they are cheap and the ML consumer reads them in bulk.
const featureRetentionDays = 90

// profileRefreshBootDelay keeps the refresh goroutine quiet while the
// collectors warm up after start.
const profileRefreshBootDelay = 5 * time.Minute

// App is the assembled pipeline process.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	st       *store.Store
	limiter  *ratelimit.Limiter
	registry *buffers.Registry

	components []Component
	sched      *scheduler.Scheduler
	smartMoney *smartmoney.Engine
	srv        *server.Server

	refreshStop chan struct{}
}

// New builds the full pipeline: PID lock, store, limiter, clients,
// engines, components, scheduler, and HTTP server. Nothing is started.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := acquirePIDLock(cfg.PIDPath(), log); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath(), log)
	if err != nil {
		releasePIDLock(cfg.PIDPath())
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		releasePIDLock(cfg.PIDPath())
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	limiter := ratelimit.New(cfg.MaxWeightPerMin, cfg.SafetyPct)
	registry := buffers.NewRegistry(tradeBufferCapacity)
	rest := hyperliquid.NewClient(cfg.APIURL, log)

	flow := orderflow.New(registry, cfg.OrderFlowWindows)
	whaleTracker := whales.New(st)
	smartMoney := smartmoney.New(st, limiter, rest, cfg.SmartMoney, log)

	changeTracker := tracker.New(st, log)
	if err := changeTracker.Preload(); err != nil {
		st.Close()
		releasePIDLock(cfg.PIDPath())
		return nil, fmt.Errorf("failed to preload change tracker: %w", err)
	}

	heatmapEngine := heatmap.New(st, limiter, rest, heatmap.Config{
		Interval:    cfg.HeatmapInterval,
		BucketCount: cfg.HeatmapBucketCount,
		RangePct:    cfg.HeatmapRangePct,
	}, log)

	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		st:          st,
		limiter:     limiter,
		registry:    registry,
		smartMoney:  smartMoney,
		refreshStop: make(chan struct{}),
	}

	// Collector start order: stream first so discoveries flow before the
	// poller's first cycle, HLP last.
	var tradeStream *stream.Stream
	if cfg.TradeStreamEnabled {
		tradeStream = stream.New(registry, st, limiter, rest, cfg.WSURL, log)
		app.components = append(app.components, tradeStream)
	}

	var positionPoller *poller.Poller
	if cfg.PollerEnabled {
		positionPoller = poller.New(st, limiter, rest, poller.Config{
			Workers: cfg.PollerWorkers,
			Tiers: store.TierIntervals{
				Tier1: cfg.Tier1Interval,
				Tier2: cfg.Tier2Interval,
				Tier3: cfg.Tier3Interval,
			},
			WhaleThreshold: cfg.WhaleThreshold,
			MidThreshold:   cfg.MidThreshold,
		}, log)
		positionPoller.WireSmartMoney(smartMoney)
		positionPoller.WireChangeTracker(changeTracker)
		app.components = append(app.components, positionPoller)
	}

	var vaultTracker *hlp.Tracker
	if cfg.HLPEnabled {
		vaultTracker = hlp.New(st, limiter, rest, cfg.HLPVaults, cfg.HLPPollInterval, log)
		app.components = append(app.components, vaultTracker)
	}

	app.components = append(app.components, smartMoney, heatmapEngine)

	app.sched = scheduler.New(log)
	if err := app.sched.AddJob("@hourly", scheduler.NewPruneJob(st, cfg.PruneDays, featureRetentionDays, log)); err != nil {
		st.Close()
		releasePIDLock(cfg.PIDPath())
		return nil, err
	}
	if err := app.sched.AddJob("@every 6h", scheduler.NewCheckpointJob(st, log)); err != nil {
		st.Close()
		releasePIDLock(cfg.PIDPath())
		return nil, err
	}
	if cfg.SmartMoney.AutoCurateEnabled {
		if err := app.sched.AddJob("@hourly", scheduler.NewCurateJob(smartMoney)); err != nil {
			st.Close()
			releasePIDLock(cfg.PIDPath())
			return nil, err
		}
	}

	app.srv = server.New(server.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Log:     log,
		Store:   st,
		Limiter: limiter,
		Components: server.Components{
			Stream:     tradeStream,
			Poller:     positionPoller,
			HLP:        vaultTracker,
			Heatmap:    heatmapEngine,
			Flow:       flow,
			Whales:     whaleTracker,
			SmartMoney: smartMoney,
			Tracker:    changeTracker,
		},
	})

	return app, nil
}

// Run starts everything and blocks until ctx is cancelled or the HTTP
// server fails. Shutdown is ordered: collectors in reverse start order,
// then scheduler, HTTP, store, PID lock.
func (a *App) Run(ctx context.Context) error {
	started := make([]Component, 0, len(a.components))
	for _, c := range a.components {
		if err := c.Start(); err != nil {
			a.log.Error().Err(err).Str("component", c.Name()).Msg("Component failed to start")
			a.stopAll(started)
			a.cleanup()
			return err
		}
		started = append(started, c)
		a.log.Info().Str("component", c.Name()).Msg("Component started")
	}

	a.sched.Start()
	go a.profileRefreshLoop()

	serverErr := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		a.log.Error().Err(err).Msg("HTTP server failed")
		runErr = err
	}

	close(a.refreshStop)
	a.stopAll(started)
	a.sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	a.cleanup()
	a.log.Info().Msg("Shutdown complete")
	return runErr
}

// stopAll stops components in reverse start order.
func (a *App) stopAll(started []Component) {
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		a.log.Info().Str("component", c.Name()).Msg("Stopping component")
		c.Stop()
	}
}

func (a *App) cleanup() {
	if err := a.st.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close store")
	}
	releasePIDLock(a.cfg.PIDPath())
}

// profileRefreshLoop re-queues stale wallet profiles on the configured
// cadence, after an initial warm-up delay.
func (a *App) profileRefreshLoop() {
	select {
	case <-a.refreshStop:
		return
	case <-time.After(profileRefreshBootDelay):
	}

	interval := time.Duration(a.cfg.SmartMoney.ProfileRefreshHours) * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.refreshStaleProfiles(interval)
		select {
		case <-a.refreshStop:
			return
		case <-ticker.C:
		}
	}
}

func (a *App) refreshStaleProfiles(maxAge time.Duration) {
	stale, err := a.st.Profiles.StaleAddresses(time.Now().Add(-maxAge), a.cfg.SmartMoney.MaxProfilesPerCycle)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to select stale profiles")
		return
	}
	if len(stale) == 0 {
		return
	}

	queued := a.smartMoney.EnqueueForRefresh(stale)
	a.log.Info().Int("stale", len(stale)).Int("queued", queued).Msg("Requeued stale profiles")
}
