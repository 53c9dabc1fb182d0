package stream

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/buffers"
	"github.com/hynous/hynous-data/internal/clients/hyperliquid"
	"github.com/hynous/hynous-data/internal/ratelimit"
	testhelpers "github.com/hynous/hynous-data/internal/testing"
)

func testAddr(suffix string) string {
	return "0x" + strings.Repeat("0", 40-len(suffix)) + suffix
}

func newTestStream(t *testing.T) (*Stream, func()) {
	t.Helper()
	st, cleanup := testhelpers.NewTestStore(t)
	s := newWith(buffers.NewRegistry(100), st, ratelimit.New(1200, 100), nil, nil, zerolog.Nop())
	return s, cleanup
}

func TestHandleTradeBuffersValidAndCountsInvalid(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	s.handleTrade(hyperliquid.WSTrade{Coin: "BTC", Side: "B", Px: "100000", Sz: "0.1", Time: 1700000000000})
	s.handleTrade(hyperliquid.WSTrade{Coin: "BTC", Side: "A", Px: "100100", Sz: "0.2", Time: 1700000001000})
	s.handleTrade(hyperliquid.WSTrade{Coin: "BTC", Side: "X", Px: "1", Sz: "1"})
	s.handleTrade(hyperliquid.WSTrade{Coin: "", Side: "B", Px: "1", Sz: "1"})

	assert.Equal(t, int64(2), s.totalTrades.Load())
	assert.Equal(t, int64(2), s.invalidTrades.Load())
	assert.Equal(t, 2, s.registry.Len("BTC"))
}

func TestLiquidationRecordedAboveThreshold(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	liquidated := testAddr("aa")
	// Sell-side taker closing out a long, 50,000 USD notional.
	s.handleTrade(hyperliquid.WSTrade{
		Coin: "ETH", Side: "A", Px: "2500", Sz: "20", Time: 1700000000000,
		Users: []string{liquidated, testAddr("bb")}, Liquidation: true,
	})

	events, err := s.st.Liquidations.RecentByCoin("ETH", 60*24*365*100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "long", events[0].Side)
	assert.Equal(t, liquidated, events[0].Address)
	assert.InDelta(t, 50000, events[0].NotionalUSD, 0.001)
	assert.Equal(t, int64(1), s.liquidations.Load())
}

func TestSmallLiquidationBufferedNotRecorded(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	// 50 USD notional: below the recording floor, still buffered.
	s.handleTrade(hyperliquid.WSTrade{
		Coin: "DOGE", Side: "B", Px: "0.5", Sz: "100", Time: 1700000000000,
		Liquidation: true,
	})

	assert.Equal(t, 1, s.registry.Len("DOGE"))
	events, err := s.st.Liquidations.RecentByCoin("DOGE", 60)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int64(0), s.liquidations.Load())
}

func TestParticipantDiscoveryAndFlush(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	a, b := testAddr("01"), testAddr("02")
	s.collectParticipants([]string{a, b, "bogus"}, 1700000000000)
	s.collectParticipants([]string{a}, 1700000005000)

	s.pendingMu.Lock()
	require.Len(t, s.pending, 2)
	assert.Equal(t, 2, s.pending[a].TradeCount)
	assert.Equal(t, 1, s.pending[b].TradeCount)
	s.pendingMu.Unlock()

	s.flushDiscoveries()
	assert.Equal(t, int64(2), s.discovered.Load())

	row, err := s.st.Addresses.Get(a)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(2), row.TradeCount)

	// Second flush with the same addresses inserts nothing new but adds
	// one more invocation's worth of trade counts.
	s.collectParticipants([]string{a}, 1700000010000)
	s.flushDiscoveries()
	assert.Equal(t, int64(2), s.discovered.Load())

	row, err = s.st.Addresses.Get(a)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row.TradeCount)
}

func TestFlushDiscoveriesEmptyIsNoop(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	s.flushDiscoveries()
	assert.Equal(t, int64(0), s.discovered.Load())
}

func TestHealthyRequiresConnection(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	assert.False(t, s.Healthy())
	s.connected.Store(true)
	assert.True(t, s.Healthy())
}

func TestStatsShape(t *testing.T) {
	s, cleanup := newTestStream(t)
	defer cleanup()

	stats := s.Stats()
	assert.Contains(t, stats, "total_trades")
	assert.Contains(t, stats, "total_invalid_trades")
	assert.Contains(t, stats, "addresses_discovered")
	assert.Contains(t, stats, "reconnect_attempts")
}
