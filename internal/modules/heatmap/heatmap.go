// Package heatmap aggregates stored liquidation prices into fixed price
// buckets around the current mid, giving a map of where forced closes
// would cluster.
package heatmap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/store"
)

const (
	midsWeight     = 2
	acquireTimeout = 10 * time.Second
)

type midsFetcher interface {
	AllMids(ctx context.Context) (map[string]float64, error)
}

// Bucket is one price slice of the map.
type Bucket struct {
	PriceLow    float64 `json:"price_low"`
	PriceHigh   float64 `json:"price_high"`
	LongLiqUSD  float64 `json:"long_liq_usd"`
	ShortLiqUSD float64 `json:"short_liq_usd"`
	LongCount   int     `json:"long_count"`
	ShortCount  int     `json:"short_count"`
}

// Summary carries the coin-level totals alongside the buckets.
type Summary struct {
	TotalPositions   int     `json:"total_positions"`
	TotalLongLiqUSD  float64 `json:"total_long_liq_usd"`
	TotalShortLiqUSD float64 `json:"total_short_liq_usd"`
}

// Heatmap is one computed map for a coin.
type Heatmap struct {
	Coin       string    `json:"coin"`
	Mid        float64   `json:"mid"`
	ComputedAt time.Time `json:"computed_at"`
	Buckets    []Bucket  `json:"buckets"`
	Summary    Summary   `json:"summary"`
}

// Config sets the band and resolution of the map.
type Config struct {
	Interval    time.Duration
	BucketCount int
	RangePct    float64
}

// Engine recomputes heatmaps on an interval and serves them from a cache.
// A failed recompute keeps the previous cache so readers degrade to stale
// data instead of errors.
type Engine struct {
	st      *store.Store
	limiter *ratelimit.Limiter
	mids    midsFetcher
	cfg     Config
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*Heatmap

	recomputes   atomic.Int64
	skips        atomic.Int64
	fetchErrors  atomic.Int64
	lastComputed atomic.Int64

	stop    chan struct{}
	stopped chan struct{}
}

func New(st *store.Store, limiter *ratelimit.Limiter, mids midsFetcher, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		st:      st,
		limiter: limiter,
		mids:    mids,
		cfg:     cfg,
		log:     log.With().Str("component", "heatmap").Logger(),
		cache:   make(map[string]*Heatmap),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the recompute loop.
func (e *Engine) Start() error {
	e.log.Info().
		Dur("interval", e.cfg.Interval).
		Int("buckets", e.cfg.BucketCount).
		Float64("range_pct", e.cfg.RangePct).
		Msg("Starting heatmap engine")
	go e.run()
	return nil
}

// Stop halts the loop and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.stopped
}

func (e *Engine) run() {
	defer close(e.stopped)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.recompute()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.recompute()
		}
	}
}

func (e *Engine) recompute() {
	if !e.limiter.Acquire(midsWeight, acquireTimeout) {
		e.skips.Add(1)
		e.log.Warn().Msg("Heatmap recompute skipped, no budget for mids")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mids, err := e.mids.AllMids(ctx)
	if err != nil {
		e.fetchErrors.Add(1)
		e.log.Error().Err(err).Msg("Failed to fetch mids, keeping previous heatmaps")
		return
	}

	coins, err := e.st.Positions.CoinsWithPositions()
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to list coins with positions")
		return
	}

	fresh := make(map[string]*Heatmap, len(coins))
	for _, coin := range coins {
		mid, ok := mids[coin]
		if !ok || mid <= 0 {
			continue
		}
		hm, err := e.computeCoin(coin, mid)
		if err != nil {
			e.log.Error().Err(err).Str("coin", coin).Msg("Failed to compute heatmap")
			continue
		}
		fresh[coin] = hm
	}

	e.mu.Lock()
	for coin, hm := range fresh {
		e.cache[coin] = hm
	}
	e.mu.Unlock()

	e.recomputes.Add(1)
	e.lastComputed.Store(time.Now().UnixMilli())
	e.log.Debug().Int("coins", len(fresh)).Msg("Heatmaps recomputed")
}

// computeCoin buckets every stored liquidation price inside
// [mid·(1−r), mid·(1+r)). Prices outside the band still count toward
// total_positions but contribute nothing to any bucket or USD total.
func (e *Engine) computeCoin(coin string, mid float64) (*Heatmap, error) {
	rows, err := e.st.Positions.LiqRows(coin)
	if err != nil {
		return nil, err
	}

	low := mid * (1 - e.cfg.RangePct)
	high := mid * (1 + e.cfg.RangePct)
	width := (high - low) / float64(e.cfg.BucketCount)

	buckets := make([]Bucket, e.cfg.BucketCount)
	for i := range buckets {
		buckets[i].PriceLow = low + float64(i)*width
		buckets[i].PriceHigh = low + float64(i+1)*width
	}

	var sum Summary
	for _, row := range rows {
		sum.TotalPositions++
		if row.LiqPx < low || row.LiqPx >= high {
			continue
		}
		idx := int((row.LiqPx - low) / width)
		if idx >= e.cfg.BucketCount {
			idx = e.cfg.BucketCount - 1
		}
		if row.Side == domain.SideLong {
			buckets[idx].LongLiqUSD += row.SizeUSD
			buckets[idx].LongCount++
			sum.TotalLongLiqUSD += row.SizeUSD
		} else {
			buckets[idx].ShortLiqUSD += row.SizeUSD
			buckets[idx].ShortCount++
			sum.TotalShortLiqUSD += row.SizeUSD
		}
	}

	return &Heatmap{
		Coin:       coin,
		Mid:        mid,
		ComputedAt: time.Now(),
		Buckets:    buckets,
		Summary:    sum,
	}, nil
}

// Get returns the cached heatmap for a coin plus its age in seconds, or
// an error when no map has been computed yet.
func (e *Engine) Get(coin string) (*Heatmap, float64, error) {
	e.mu.RLock()
	hm, ok := e.cache[coin]
	e.mu.RUnlock()
	if !ok {
		return nil, 0, domain.Errorf(domain.ErrNotAvailable, "no heatmap for %s", coin)
	}
	return hm, time.Since(hm.ComputedAt).Seconds(), nil
}

func (e *Engine) Healthy() bool {
	last := e.lastComputed.Load()
	if last == 0 {
		return true // not computed yet, still warming up
	}
	return time.Since(time.UnixMilli(last)) < 3*e.cfg.Interval
}

func (e *Engine) Name() string { return "heatmap" }

func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	cached := len(e.cache)
	e.mu.RUnlock()

	return map[string]interface{}{
		"coins_cached":  cached,
		"recomputes":    e.recomputes.Load(),
		"budget_skips":  e.skips.Load(),
		"fetch_errors":  e.fetchErrors.Load(),
		"last_computed": e.lastComputed.Load(),
	}
}
