// Package poller keeps the positions table current for every known,
// recently-active address, fanning polls out over a bounded worker pool
// under the shared rate budget.
package poller

import (
	"context"
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
	selectionInterval = 5 * time.Second
	selectionLimit    = 200
	pollWeight        = 2
	acquireTimeout    = 10 * time.Second
)

// accountFetcher is the slice of the REST client the poller needs.
type accountFetcher interface {
	UserState(ctx context.Context, address string) (*domain.AccountState, error)
}

// equitySink receives the equity snapshots gathered in a poll batch.
// Wired to the smart-money engine.
type equitySink interface {
	BatchSnapshotPnL(snaps []domain.EquitySnapshot)
}

// changeChecker diffs an address's freshly polled positions against its
// previous snapshot. Wired to the position change tracker.
type changeChecker interface {
	CheckAndRecord(address string, positions []domain.Position)
}

// Config holds the poller's tiering and fan-out policy.
type Config struct {
	Workers        int
	Tiers          store.TierIntervals
	WhaleThreshold float64
	MidThreshold   float64
}

// Poller is the tiered account-state collector.
type Poller struct {
	st      *store.Store
	limiter *ratelimit.Limiter
	fetcher accountFetcher
	cfg     Config
	log     zerolog.Logger

	// Optional downstream consumers; nil means not wired.
	sink    equitySink
	tracker changeChecker

	pollsCompleted atomic.Int64
	pollsSkipped   atomic.Int64
	pollErrors     atomic.Int64
	cycles         atomic.Int64
	lastCycleSize  atomic.Int64

	stop    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	started bool
}

// New creates the poller.
func New(st *store.Store, limiter *ratelimit.Limiter, fetcher accountFetcher, cfg Config, log zerolog.Logger) *Poller {
	return &Poller{
		st:      st,
		limiter: limiter,
		fetcher: fetcher,
		cfg:     cfg,
		log:     log.With().Str("component", "position_poller").Logger(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// WireSmartMoney routes batch equity snapshots to the smart-money engine.
func (p *Poller) WireSmartMoney(sink equitySink) { p.sink = sink }

// WireChangeTracker routes per-address poll results to the change tracker.
func (p *Poller) WireChangeTracker(tracker changeChecker) { p.tracker = tracker }

// Name implements the component capability.
func (p *Poller) Name() string { return "position_poller" }

// Start launches the selection loop.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	go p.run()
	p.log.Info().Int("workers", p.cfg.Workers).Msg("Position poller started")
	return nil
}

// Stop signals the loop and joins it. In-flight polls may complete, but
// their results are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stop)
	select {
	case <-p.stopped:
	case <-time.After(15 * time.Second):
		p.log.Warn().Msg("Position poller did not stop in time")
	}
}

// Healthy reports whether the loop is running.
func (p *Poller) Healthy() bool {
	select {
	case <-p.stopped:
		return false
	default:
		return true
	}
}

// Stats returns the public counters.
func (p *Poller) Stats() map[string]interface{} {
	return map[string]interface{}{
		"polls_completed": p.pollsCompleted.Load(),
		"polls_skipped":   p.pollsSkipped.Load(),
		"poll_errors":     p.pollErrors.Load(),
		"cycles":          p.cycles.Load(),
		"last_cycle_size": p.lastCycleSize.Load(),
	}
}

func (p *Poller) run() {
	defer close(p.stopped)

	ticker := time.NewTicker(selectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.cycle()
		}
	}
}

// cycle selects due addresses and polls them.
func (p *Poller) cycle() {
	addrs, err := p.st.Addresses.SelectPollable(selectionLimit, p.cfg.Tiers, time.Now())
	if err != nil {
		p.log.Error().Err(err).Msg("Address selection failed")
		return
	}
	if len(addrs) == 0 {
		return
	}

	p.cycles.Add(1)
	p.lastCycleSize.Store(int64(len(addrs)))
	p.pollBatch(addrs)
}

// pollResult is one successful account-state fetch.
type pollResult struct {
	address string
	state   *domain.AccountState
}

// pollBatch fans the addresses out over the worker pool, waits for the
// batch, and persists the results.
func (p *Poller) pollBatch(addrs []string) {
	jobs := make(chan string)
	results := make([]pollResult, 0, len(addrs))
	var resultsMu sync.Mutex

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				result, ok := p.pollOne(addr)
				if !ok {
					continue
				}
				resultsMu.Lock()
				results = append(results, result)
				resultsMu.Unlock()
			}
		}()
	}

	for _, addr := range addrs {
		select {
		case <-p.stop:
			// Drain nothing more; workers finish what they hold.
			close(jobs)
			wg.Wait()
			return
		case jobs <- addr:
		}
	}
	close(jobs)
	wg.Wait()

	// Results from a batch interrupted by shutdown are discarded.
	select {
	case <-p.stop:
		return
	default:
	}

	p.persist(results)
}

// pollOne fetches one address's account state. A rate-limit denial is a
// skip, not an error: the address keeps its place in the selection order.
func (p *Poller) pollOne(address string) (pollResult, bool) {
	if !p.limiter.Acquire(pollWeight, acquireTimeout) {
		p.pollsSkipped.Add(1)
		p.log.Warn().Str("address", address).Msg("Rate budget exhausted, skipping poll")
		return pollResult{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	defer cancel()

	state, err := p.fetcher.UserState(ctx, address)
	if err != nil {
		p.pollErrors.Add(1)
		p.log.Debug().Err(err).Str("address", address).Msg("Account state fetch failed")
		return pollResult{}, false
	}

	p.pollsCompleted.Add(1)
	return pollResult{address: address, state: state}, true
}

// persist writes one batch of poll results: positions in one write-lock
// acquisition, closed-position deletes and metadata updates per address,
// then equity snapshots and change events for the wired consumers.
func (p *Poller) persist(results []pollResult) {
	if len(results) == 0 {
		return
	}
	defer utils.OperationTimer("poll_persist", p.log)()

	now := time.Now()

	var allPositions []domain.Position
	for _, r := range results {
		allPositions = append(allPositions, r.state.Positions...)
	}
	if err := p.st.Positions.ReplaceBatch(allPositions); err != nil {
		p.log.Error().Err(err).Int("positions", len(allPositions)).Msg("Position batch write failed")
		return
	}

	var snaps []domain.EquitySnapshot
	for _, r := range results {
		activeCoins := r.state.ActiveCoins()
		if err := p.st.Positions.DeleteMissing(r.address, activeCoins); err != nil {
			p.log.Error().Err(err).Str("address", r.address).Msg("Closed-position delete failed")
			continue
		}

		var totalSizeUSD float64
		for _, pos := range r.state.Positions {
			totalSizeUSD += pos.SizeUSD
		}
		if err := p.st.Addresses.MarkPolled(r.address, totalSizeUSD, p.cfg.WhaleThreshold, p.cfg.MidThreshold, now); err != nil {
			p.log.Error().Err(err).Str("address", r.address).Msg("Address metadata update failed")
		}

		if r.state.Equity > 0 {
			snaps = append(snaps, domain.EquitySnapshot{
				Address:    r.address,
				Equity:     r.state.Equity,
				Unrealized: r.state.Unrealized,
				CreatedAt:  now,
			})
		}

		if p.tracker != nil {
			p.tracker.CheckAndRecord(r.address, r.state.Positions)
		}
	}

	if p.sink != nil && len(snaps) > 0 {
		p.sink.BatchSnapshotPnL(snaps)
	}
}
