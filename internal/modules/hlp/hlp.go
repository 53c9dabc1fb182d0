// Package hlp tracks the exchange's liquidity-provider vaults. The house
// vault takes the other side of retail flow, so its book is a contrarian
// signal worth sampling on its own cadence.
package hlp

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/store"
	"github.com/hynous/hynous-data/internal/utils"
)

const (
	pollWeight     = 2
	acquireTimeout = 10 * time.Second
	minHours       = 1
	maxHours       = 168
)

type accountFetcher interface {
	UserState(ctx context.Context, address string) (*domain.AccountState, error)
}

// CoinSentiment summarises one instrument's vault behaviour over a window.
type CoinSentiment struct {
	Coin           string  `json:"coin"`
	Flips          int     `json:"flips"`
	CurrentSide    string  `json:"current_side"`
	CurrentSizeUSD float64 `json:"current_size_usd"`
	Snapshots      int     `json:"snapshots"`
}

// Tracker polls the vault accounts and keeps their current positions in
// memory while appending the history to the store.
type Tracker struct {
	st       *store.Store
	limiter  *ratelimit.Limiter
	exchange accountFetcher
	vaults   []string
	interval time.Duration
	log      zerolog.Logger

	mu      sync.RWMutex
	current []domain.HLPSnapshot

	polls       atomic.Int64
	skips       atomic.Int64
	fetchErrors atomic.Int64
	lastPollMS  atomic.Int64

	stop    chan struct{}
	stopped chan struct{}
}

func New(st *store.Store, limiter *ratelimit.Limiter, exchange accountFetcher, vaults []string, interval time.Duration, log zerolog.Logger) *Tracker {
	return &Tracker{
		st:       st,
		limiter:  limiter,
		exchange: exchange,
		vaults:   vaults,
		interval: interval,
		log:      log.With().Str("component", "hlp").Logger(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the vault poll loop.
func (t *Tracker) Start() error {
	t.log.Info().
		Strs("vaults", t.vaults).
		Dur("interval", t.interval).
		Msg("Starting HLP vault tracker")
	go t.run()
	return nil
}

// Stop halts the loop and waits for it to exit.
func (t *Tracker) Stop() {
	close(t.stop)
	<-t.stopped
}

func (t *Tracker) run() {
	defer close(t.stopped)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.poll()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.poll()
		}
	}
}

func (t *Tracker) poll() {
	now := time.Now()
	var fresh []domain.HLPSnapshot
	fetched := 0

	for _, vault := range t.vaults {
		select {
		case <-t.stop:
			return
		default:
		}

		if !t.limiter.Acquire(pollWeight, acquireTimeout) {
			t.skips.Add(1)
			t.log.Warn().Str("vault", vault).Msg("Vault poll skipped, no budget")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		state, err := t.exchange.UserState(ctx, vault)
		cancel()
		if err != nil {
			t.fetchErrors.Add(1)
			t.log.Error().Err(err).Str("vault", vault).Msg("Failed to fetch vault state")
			continue
		}

		fetched++
		for _, p := range state.Positions {
			fresh = append(fresh, domain.HLPSnapshot{
				Vault:     vault,
				Coin:      p.Coin,
				Side:      p.Side,
				SizeUSD:   p.SizeUSD,
				EntryPx:   p.EntryPx,
				CreatedAt: now,
			})
		}
	}

	// A round where no vault answered says nothing about the vaults;
	// keep serving the last known position set.
	if fetched > 0 {
		t.mu.Lock()
		t.current = fresh
		t.mu.Unlock()

		if err := t.st.Snapshots.InsertHLPBatch(fresh, now); err != nil {
			t.log.Error().Err(err).Msg("Failed to persist vault snapshots")
		}
	} else {
		t.log.Warn().Msg("Every vault fetch failed, keeping previous positions")
	}

	t.polls.Add(1)
	t.lastPollMS.Store(now.UnixMilli())
	t.log.Debug().Int("positions", len(fresh)).Msg("Vault poll complete")
}

// Positions returns a copy of the most recent vault position set.
func (t *Tracker) Positions() []domain.HLPSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.HLPSnapshot(nil), t.current...)
}

// Sentiment walks the stored vault history and counts side flips per
// instrument. hours is clamped to [1, 168].
func (t *Tracker) Sentiment(hours int) ([]CoinSentiment, error) {
	hours = utils.ClampInt(hours, minHours, maxHours)

	snaps, err := t.st.Snapshots.HLPSince(t.vaults, hours)
	if err != nil {
		return nil, err
	}

	// Rows arrive grouped by coin, chronological within each group.
	byCoin := make(map[string]*CoinSentiment)
	lastSide := make(map[string]string)
	var order []string

	for _, snap := range snaps {
		cs, ok := byCoin[snap.Coin]
		if !ok {
			cs = &CoinSentiment{Coin: snap.Coin}
			byCoin[snap.Coin] = cs
			order = append(order, snap.Coin)
		}
		cs.Snapshots++
		if prev, seen := lastSide[snap.Coin]; seen && prev != snap.Side {
			cs.Flips++
		}
		lastSide[snap.Coin] = snap.Side
		cs.CurrentSide = snap.Side
		cs.CurrentSizeUSD = snap.SizeUSD
	}

	sort.Strings(order)
	out := make([]CoinSentiment, 0, len(order))
	for _, coin := range order {
		out = append(out, *byCoin[coin])
	}
	return out, nil
}

func (t *Tracker) Healthy() bool {
	last := t.lastPollMS.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.UnixMilli(last)) < 3*t.interval
}

func (t *Tracker) Name() string { return "hlp" }

func (t *Tracker) Stats() map[string]interface{} {
	t.mu.RLock()
	current := len(t.current)
	t.mu.RUnlock()

	return map[string]interface{}{
		"vaults":            len(t.vaults),
		"current_positions": current,
		"polls":             t.polls.Load(),
		"budget_skips":      t.skips.Load(),
		"fetch_errors":      t.fetchErrors.Load(),
	}
}
