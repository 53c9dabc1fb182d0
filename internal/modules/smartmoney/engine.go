// Package smartmoney ranks wallets by realised equity growth and profiles
// the promising ones from their fill history. Profiling is expensive on
// rate budget, so candidates flow through a deduplicated queue drained by
// a single goroutine.
package smartmoney

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/config"
	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/store"
	"github.com/hynous/hynous-data/internal/utils"
)

const (
	fillsWeight         = 20
	fillsAcquireTimeout = 15 * time.Second
	popTimeout          = 30 * time.Second
	profiledSetMaxAge   = 60 * time.Second

	minTopN = 1
	maxTopN = 200
)

type fillsFetcher interface {
	UserFills(ctx context.Context, address string) ([]domain.Fill, error)
}

// Ranking is one wallet ranked by 24h USD pnl, with its profile
// attached when known.
type Ranking struct {
	Address     string            `json:"address"`
	PnL24h      float64           `json:"pnl_24h"`
	GrowthPct   float64           `json:"growth_pct"`
	FirstEquity float64           `json:"first_equity"`
	LastEquity  float64           `json:"last_equity"`
	Positions   []domain.Position `json:"positions"`
	Profile     *domain.Profile   `json:"profile,omitempty"`
}

// Filters narrows a ranking request. Zero values mean no constraint.
type Filters struct {
	MinWinRate  float64
	Styles      []string
	ExcludeBots bool
	MinTrades   int
}

// Engine owns the pnl snapshot intake, the ranking reads, and the
// profiling pipeline.
type Engine struct {
	st       *store.Store
	limiter  *ratelimit.Limiter
	exchange fillsFetcher
	cfg      config.SmartMoneyConfig
	log      zerolog.Logger

	queue *profileQueue

	cacheMu        sync.Mutex
	profiledSet    map[string]bool
	cacheRefreshed time.Time

	snapshotsTaken  atomic.Int64
	profilesBuilt   atomic.Int64
	profileSkips    atomic.Int64
	profileFailures atomic.Int64
	budgetSkips     atomic.Int64

	stop    chan struct{}
	stopped chan struct{}
}

func New(st *store.Store, limiter *ratelimit.Limiter, exchange fillsFetcher, cfg config.SmartMoneyConfig, log zerolog.Logger) *Engine {
	return &Engine{
		st:          st,
		limiter:     limiter,
		exchange:    exchange,
		cfg:         cfg,
		log:         log.With().Str("component", "smartmoney").Logger(),
		queue:       newProfileQueue(),
		profiledSet: make(map[string]bool),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Start launches the queue drainer.
func (e *Engine) Start() error {
	e.log.Info().Float64("min_equity", e.cfg.MinEquity).Msg("Starting smart-money engine")
	go e.drain()
	return nil
}

// Stop closes the queue and waits for the drainer to exit.
func (e *Engine) Stop() {
	close(e.stop)
	e.queue.close()
	<-e.stopped
}

// BatchSnapshotPnL records one equity observation per polled address and
// feeds eligible, still-unprofiled wallets into the profile queue. Called
// from the poller's persist path.
func (e *Engine) BatchSnapshotPnL(snaps []domain.EquitySnapshot) {
	if len(snaps) == 0 {
		return
	}

	if err := e.st.Snapshots.InsertEquityBatch(snaps, time.Now()); err != nil {
		e.log.Error().Err(err).Int("snapshots", len(snaps)).Msg("Failed to insert equity snapshots")
		return
	}
	e.snapshotsTaken.Add(int64(len(snaps)))

	profiled := e.profiled()
	for _, snap := range snaps {
		if snap.Equity >= e.cfg.MinEquity && !profiled[snap.Address] {
			e.queue.enqueue(snap.Address)
		}
	}
}

// profiled returns the cached profiled-address set, refreshing it from
// the store at most once per minute.
func (e *Engine) profiled() map[string]bool {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if time.Since(e.cacheRefreshed) > profiledSetMaxAge {
		set, err := e.st.Profiles.ProfiledSet()
		if err != nil {
			e.log.Error().Err(err).Msg("Failed to refresh profiled set, using stale cache")
		} else {
			e.profiledSet = set
		}
		e.cacheRefreshed = time.Now()
	}
	return e.profiledSet
}

// Rankings returns the top wallets by 24h equity growth with positions
// and profiles attached, then applies the request filters. Wallets
// surfacing here without a profile are queued so a later request can
// filter on profile fields.
func (e *Engine) Rankings(topN int, filters Filters) ([]Ranking, error) {
	topN = utils.ClampInt(topN, minTopN, maxTopN)

	growth, err := e.st.Snapshots.EquityGrowth24h(topN)
	if err != nil {
		return nil, err
	}
	if len(growth) == 0 {
		return []Ranking{}, nil
	}

	addrs := make([]string, len(growth))
	for i, g := range growth {
		addrs[i] = g.Address
	}

	positions, err := e.st.Positions.ByAddresses(addrs)
	if err != nil {
		return nil, err
	}
	profiles, err := e.st.Profiles.ByAddresses(addrs)
	if err != nil {
		return nil, err
	}

	rankings := make([]Ranking, 0, len(growth))
	for _, g := range growth {
		r := Ranking{
			Address:     g.Address,
			PnL24h:      g.PnL24h,
			GrowthPct:   g.GrowthPct,
			FirstEquity: g.FirstEquity,
			LastEquity:  g.LastEquity,
			Positions:   positions[g.Address],
		}
		if p, ok := profiles[g.Address]; ok {
			profile := p
			r.Profile = &profile
		} else {
			e.queue.enqueue(g.Address)
		}
		rankings = append(rankings, r)
	}

	return applyFilters(rankings, filters), nil
}

// applyFilters drops rankings that miss any requested constraint.
// Profile-based filters exclude unprofiled wallets once set.
func applyFilters(rankings []Ranking, f Filters) []Ranking {
	needsProfile := f.MinWinRate > 0 || len(f.Styles) > 0 || f.ExcludeBots || f.MinTrades > 0
	if !needsProfile {
		return rankings
	}

	styleSet := make(map[string]bool, len(f.Styles))
	for _, s := range f.Styles {
		styleSet[s] = true
	}

	out := rankings[:0]
	for _, r := range rankings {
		if r.Profile == nil {
			continue
		}
		if f.MinWinRate > 0 && r.Profile.WinRate < f.MinWinRate {
			continue
		}
		if len(styleSet) > 0 && !styleSet[r.Profile.Style] {
			continue
		}
		if f.ExcludeBots && r.Profile.IsBot {
			continue
		}
		if f.MinTrades > 0 && r.Profile.TradeCount < f.MinTrades {
			continue
		}
		out = append(out, r)
	}
	return out
}

// EnqueueForRefresh requeues addresses whose profiles have gone stale.
// The orchestrator calls this on its refresh cadence.
func (e *Engine) EnqueueForRefresh(addrs []string) int {
	queued := 0
	for _, addr := range addrs {
		if e.queue.enqueue(addr) {
			queued++
		}
	}
	return queued
}

// Curate inserts the best currently-rankable wallets into the watchlist
// under the "auto" label. Gated by configuration; meant to run from a
// scheduled job, not a request path.
func (e *Engine) Curate() error {
	if !e.cfg.AutoCurateEnabled {
		return nil
	}

	rankings, err := e.Rankings(e.cfg.AutoCurateTopN, Filters{})
	if err != nil {
		return err
	}

	curated := 0
	for _, r := range rankings {
		if r.LastEquity < e.cfg.AlertMinEquity {
			continue
		}
		if r.Profile == nil || r.Profile.WinRate < e.cfg.AlertMinWinRate {
			continue
		}
		if err := e.st.Watchlist.Watch(r.Address, "auto", "", ""); err != nil {
			e.log.Error().Err(err).Str("address", r.Address).Msg("Failed to auto-watch wallet")
			continue
		}
		curated++
	}

	if curated > 0 {
		e.log.Info().Int("wallets", curated).Msg("Auto-curated wallets into watchlist")
	}
	return nil
}

// drain pulls queued addresses and profiles them one at a time. One
// in-flight profile bounds the budget this engine can consume.
func (e *Engine) drain() {
	defer close(e.stopped)

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		address, ok := e.queue.pop(popTimeout)
		if !ok {
			select {
			case <-e.stop:
				return
			default:
				continue
			}
		}

		e.profileOne(address)
	}
}

// profileOne builds and persists one wallet profile. Failure paths leave
// the queue's dedupe entry in place so the address cannot be re-enqueued
// (and re-bill its fills weight) until the TTL lapses.
func (e *Engine) profileOne(address string) {
	if !e.limiter.Acquire(fillsWeight, fillsAcquireTimeout) {
		e.budgetSkips.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	fills, err := e.exchange.UserFills(ctx, address)
	cancel()
	if err != nil {
		e.profileFailures.Add(1)
		e.log.Warn().Err(err).Str("address", address).Msg("Failed to fetch fills for profiling")
		return
	}

	// Profile only the recent window so a wallet's ancient history
	// cannot carry a stale edge into today's ranking.
	fills = recentFills(fills, e.cfg.ProfileWindowDays)

	profile, ok := buildProfile(address, fills, profilerConfig{
		minTrades:       e.cfg.MinTradesForProfile,
		botTradesPerDay: e.cfg.BotTradesPerDay,
		botAvgHoldMin:   e.cfg.BotAvgHoldMin,
	})
	if !ok {
		e.profileSkips.Add(1)
		return
	}

	if err := e.st.Profiles.Upsert(profile); err != nil {
		e.profileFailures.Add(1)
		e.log.Error().Err(err).Str("address", address).Msg("Failed to persist profile")
		return
	}

	e.cacheMu.Lock()
	e.profiledSet[address] = true
	e.cacheMu.Unlock()

	e.profilesBuilt.Add(1)
	e.queue.done(address)
	e.log.Debug().
		Str("address", address).
		Float64("win_rate", profile.WinRate).
		Str("style", profile.Style).
		Msg("Wallet profiled")
}

func (e *Engine) Healthy() bool { return true }

func (e *Engine) Name() string { return "smartmoney" }

func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"queue_depth":      e.queue.len(),
		"snapshots_taken":  e.snapshotsTaken.Load(),
		"profiles_built":   e.profilesBuilt.Load(),
		"profile_skips":    e.profileSkips.Load(),
		"profile_failures": e.profileFailures.Load(),
		"budget_skips":     e.budgetSkips.Load(),
	}
}
