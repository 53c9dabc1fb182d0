// Package stream maintains the process's single WebSocket subscription to
// the exchange trade feed. It fills the in-memory trade buffers, discovers
// addresses from trade participants, and records qualifying liquidations.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/buffers"
	"github.com/hynous/hynous-data/internal/clients/hyperliquid"
	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/store"
	"github.com/hynous/hynous-data/internal/utils"
)

const (
	// Flush pending discoveries and check liveness roughly once a second.
	monitorInterval = time.Second
	// No trade for this long means the subscription is dead.
	livenessTimeout = 30 * time.Second
	// Fixed wait between reconnect attempts.
	reconnectBackoff = 5 * time.Second
	// Weight of the instrument metadata query.
	metaWeight = 20
	// Liquidations below this notional are buffered but not recorded.
	minLiquidationUSD = 100
)

// metaFetcher is the slice of the REST client the stream needs.
type metaFetcher interface {
	Meta(ctx context.Context) ([]string, error)
}

// wsConn is one live feed connection.
type wsConn interface {
	Subscribe(ctx context.Context, subType, coin string) error
	ReadTrades(ctx context.Context) ([]hyperliquid.WSTrade, bool, error)
	Close() error
}

// dialFunc opens a fresh feed connection.
type dialFunc func(ctx context.Context) (wsConn, error)

// Stream is the self-healing trade feed collector.
type Stream struct {
	registry *buffers.Registry
	st       *store.Store
	limiter  *ratelimit.Limiter
	rest     metaFetcher
	dial     dialFunc
	log      zerolog.Logger

	// Pending address discoveries, keyed by address.
	pendingMu sync.Mutex
	pending   map[string]*domain.DiscoveredAddress

	// Counters. lastTradeMS is unix milliseconds of the newest trade.
	totalTrades     atomic.Int64
	invalidTrades   atomic.Int64
	liquidations    atomic.Int64
	discovered      atomic.Int64
	reconnects      atomic.Int64
	lastTradeMS     atomic.Int64
	connected       atomic.Bool
	subscribedCoins atomic.Int64

	stop    chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New creates the trade stream. It does not connect until Start.
func New(registry *buffers.Registry, st *store.Store, limiter *ratelimit.Limiter, rest *hyperliquid.Client, wsURL string, log zerolog.Logger) *Stream {
	s := newWith(registry, st, limiter, rest, nil, log)
	s.dial = func(ctx context.Context) (wsConn, error) {
		return hyperliquid.DialWS(ctx, wsURL, log)
	}
	return s
}

// newWith wires the stream with injectable collaborators for tests.
func newWith(registry *buffers.Registry, st *store.Store, limiter *ratelimit.Limiter, rest metaFetcher, dial dialFunc, log zerolog.Logger) *Stream {
	return &Stream{
		registry: registry,
		st:       st,
		limiter:  limiter,
		rest:     rest,
		dial:     dial,
		log:      log.With().Str("component", "trade_stream").Logger(),
		pending:  make(map[string]*domain.DiscoveredAddress),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Name implements the component capability.
func (s *Stream) Name() string { return "trade_stream" }

// Start clears the buffers and launches the supervisor goroutine.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	// A restart must never serve another run's trades.
	s.registry.Clear()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.supervise(ctx)

	s.log.Info().Msg("Trade stream started")
	return nil
}

// Stop disconnects and joins the supervisor.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stop)
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.stopped:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("Trade stream supervisor did not stop in time")
	}
}

// Healthy reports whether the subscription is live and recently fed.
func (s *Stream) Healthy() bool {
	if !s.connected.Load() {
		return false
	}
	last := s.lastTradeMS.Load()
	if last == 0 {
		// Connected but nothing seen yet; give the feed the benefit of
		// the liveness window.
		return true
	}
	return time.Since(time.UnixMilli(last)) < livenessTimeout
}

// Stats returns the public counters.
func (s *Stream) Stats() map[string]interface{} {
	s.pendingMu.Lock()
	pending := len(s.pending)
	s.pendingMu.Unlock()

	return map[string]interface{}{
		"connected":             s.connected.Load(),
		"subscribed_coins":      s.subscribedCoins.Load(),
		"total_trades":          s.totalTrades.Load(),
		"total_invalid_trades":  s.invalidTrades.Load(),
		"liquidations_recorded": s.liquidations.Load(),
		"addresses_discovered":  s.discovered.Load(),
		"reconnect_attempts":    s.reconnects.Load(),
		"pending_addresses":     pending,
		"last_trade_ms":         s.lastTradeMS.Load(),
	}
}

// AddressesDiscovered returns the running count of first-time addresses.
func (s *Stream) AddressesDiscovered() int64 {
	return s.discovered.Load()
}

// supervise runs connect-and-subscribe → monitor in a loop, reconnecting
// after any failure or liveness timeout.
func (s *Stream) supervise(ctx context.Context) {
	defer close(s.stopped)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		conn, err := s.connectAndSubscribe(ctx)
		if err != nil {
			s.reconnects.Add(1)
			s.log.Error().Err(err).Msg("Trade stream connect failed, backing off")
			s.wait(reconnectBackoff)
			continue
		}

		s.connected.Store(true)
		s.lastTradeMS.Store(time.Now().UnixMilli())
		s.monitor(ctx, conn)
		s.connected.Store(false)
		_ = conn.Close()

		// Flush whatever discoveries were pending when the connection died.
		s.flushDiscoveries()

		select {
		case <-s.stop:
			return
		default:
			s.reconnects.Add(1)
			s.log.Warn().Msg("Trade stream disconnected, reconnecting after backoff")
			s.wait(reconnectBackoff)
		}
	}
}

// connectAndSubscribe fetches instrument metadata and subscribes to the
// trades channel for every instrument.
func (s *Stream) connectAndSubscribe(ctx context.Context) (wsConn, error) {
	if !s.limiter.Acquire(metaWeight, 10*time.Second) {
		return nil, domain.Errorf(domain.ErrBudgetExhausted, "no budget for instrument metadata")
	}

	coins, err := s.rest.Meta(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	for _, coin := range coins {
		if err := conn.Subscribe(ctx, "trades", coin); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	s.subscribedCoins.Store(int64(len(coins)))
	s.log.Info().Int("coins", len(coins)).Msg("Subscribed to trade feed")
	return conn, nil
}

// monitor consumes the connection from a reader goroutine while flushing
// discoveries and enforcing the liveness deadline. Returns when the
// connection dies, liveness expires, or the stream stops.
func (s *Stream) monitor(ctx context.Context, conn wsConn) {
	readErr := make(chan error, 1)
	go func() {
		for {
			trades, timedOut, err := conn.ReadTrades(ctx)
			if err != nil {
				readErr <- err
				return
			}
			if timedOut {
				continue
			}
			for _, wt := range trades {
				s.handleTrade(wt)
			}
		}
	}()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case err := <-readErr:
			s.log.Warn().Err(err).Msg("Trade feed read loop ended")
			return
		case <-ticker.C:
			s.flushDiscoveries()
			last := s.lastTradeMS.Load()
			if last > 0 && time.Since(time.UnixMilli(last)) > livenessTimeout {
				s.log.Warn().
					Time("last_trade", time.UnixMilli(last)).
					Msg("No trades within liveness window, forcing reconnect")
				return
			}
		}
	}
}

// handleTrade validates, buffers, and mines one trade.
func (s *Stream) handleTrade(wt hyperliquid.WSTrade) {
	trade, ok := hyperliquid.ParseWSTrade(wt)
	if !ok {
		s.invalidTrades.Add(1)
		return
	}

	s.registry.Append(trade)
	s.totalTrades.Add(1)
	s.lastTradeMS.Store(time.Now().UnixMilli())

	if wt.IsLiq() {
		s.recordLiquidation(wt, trade)
	}

	s.collectParticipants(wt.Users, trade.TimeMS)
}

// recordLiquidation synthesizes a liquidation event when the trade's
// notional qualifies. A buy-side taker means a short got closed out; a
// sell-side taker means a long did.
func (s *Stream) recordLiquidation(wt hyperliquid.WSTrade, trade domain.Trade) {
	notional := trade.NotionalUSD()
	if notional < minLiquidationUSD {
		return
	}

	side := domain.SideLong
	if trade.Side == domain.SideBuy {
		side = domain.SideShort
	}

	var address string
	if len(wt.Users) > 0 {
		if addr, ok := utils.NormalizeAddress(wt.Users[0]); ok {
			address = addr
		}
	}

	ev := domain.LiquidationEvent{
		Time:        time.UnixMilli(trade.TimeMS),
		Coin:        trade.Coin,
		Side:        side,
		Address:     address,
		Price:       trade.Price,
		Size:        trade.Size,
		NotionalUSD: notional,
	}

	if err := s.st.Liquidations.Insert(ev); err != nil {
		// A storage hiccup must never kill the feed handler.
		s.log.Error().Err(err).Str("coin", ev.Coin).Msg("Failed to record liquidation")
	} else {
		s.liquidations.Add(1)
	}
}

// collectParticipants accumulates validated trade participants into the
// pending discovery map.
func (s *Stream) collectParticipants(users []string, tradeTimeMS int64) {
	if len(users) == 0 {
		return
	}

	seen := time.UnixMilli(tradeTimeMS)
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for _, user := range users {
		addr, ok := utils.NormalizeAddress(user)
		if !ok {
			continue
		}

		if d, exists := s.pending[addr]; exists {
			if seen.After(d.LastSeen) {
				d.LastSeen = seen
			}
			d.TradeCount++
		} else {
			s.pending[addr] = &domain.DiscoveredAddress{
				Address:    addr,
				FirstSeen:  seen,
				LastSeen:   seen,
				TradeCount: 1,
			}
		}
	}
}

// flushDiscoveries writes the pending map to the address registry and
// folds newly inserted addresses into the public counter.
func (s *Stream) flushDiscoveries() {
	s.pendingMu.Lock()
	if len(s.pending) == 0 {
		s.pendingMu.Unlock()
		return
	}
	batch := make([]domain.DiscoveredAddress, 0, len(s.pending))
	for _, d := range s.pending {
		batch = append(batch, *d)
	}
	s.pending = make(map[string]*domain.DiscoveredAddress)
	s.pendingMu.Unlock()

	inserted, err := s.st.Addresses.UpsertDiscovered(batch)
	if err != nil {
		s.log.Error().Err(err).Int("batch", len(batch)).Msg("Failed to flush discovered addresses")
		return
	}

	if inserted > 0 {
		s.discovered.Add(int64(inserted))
		s.log.Debug().Int("new", inserted).Int("batch", len(batch)).Msg("Flushed address discoveries")
	}
}

// wait sleeps for d unless the stream stops first.
func (s *Stream) wait(d time.Duration) {
	select {
	case <-time.After(d):
	case <-s.stop:
	}
}
