package smartmoney

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/config"
	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/store"
	testhelpers "github.com/hynous/hynous-data/internal/testing"
)

func testAddr(suffix string) string {
	return "0x" + strings.Repeat("0", 40-len(suffix)) + suffix
}

func testSMConfig() config.SmartMoneyConfig {
	return config.SmartMoneyConfig{
		ProfileWindowDays:   30,
		ProfileRefreshHours: 6,
		MinEquity:           10000,
		MinTradesForProfile: 5,
		BotTradesPerDay:     50,
		BotAvgHoldMin:       2,
		MaxProfilesPerCycle: 50,
		AlertMinEquity:      50000,
		AlertMinWinRate:     0.55,
		AutoCurateEnabled:   false,
		AutoCurateTopN:      10,
	}
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *testhelpers.MockExchange) {
	t.Helper()
	st, cleanup := testhelpers.NewTestStore(t)
	t.Cleanup(cleanup)
	mock := &testhelpers.MockExchange{}
	e := New(st, ratelimit.New(1200, 100), mock, testSMConfig(), zerolog.Nop())
	return e, st, mock
}

func TestBatchSnapshotEnqueuesEligible(t *testing.T) {
	e, st, _ := newTestEngine(t)

	rich := testAddr("a1")
	poor := testAddr("a2")
	known := testAddr("a3")

	// known already has a profile, so it must not be queued.
	require.NoError(t, st.Profiles.Upsert(domain.Profile{
		Address: known, TradeCount: 10, WinRate: 0.6, Style: domain.StyleDayTrader, UpdatedAt: time.Now(),
	}))

	e.BatchSnapshotPnL([]domain.EquitySnapshot{
		{Address: rich, Equity: 50000},
		{Address: poor, Equity: 500},
		{Address: known, Equity: 90000},
	})

	assert.Equal(t, 1, e.queue.len())
	addr, ok := e.queue.pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, rich, addr)

	// Snapshots persisted for all three regardless of eligibility.
	assert.Equal(t, int64(3), e.snapshotsTaken.Load())
}

func TestProfileOneBuildsAndPersists(t *testing.T) {
	e, st, mock := newTestEngine(t)

	addr := testAddr("b1")
	var fills []domain.Fill
	start := time.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < 6; i++ {
		fills = append(fills, testhelpers.RoundTripFills("BTC", 100, 108, start.Add(time.Duration(i)*24*time.Hour), 2*time.Hour)...)
	}
	mock.SetFills(addr, fills)

	e.profileOne(addr)

	p, err := st.Profiles.Get(addr)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 6, p.TradeCount)
	assert.Equal(t, 1.0, p.WinRate)
	assert.Equal(t, int64(1), e.profilesBuilt.Load())
}

func TestProfileOneTooFewFillsSkips(t *testing.T) {
	e, st, mock := newTestEngine(t)

	addr := testAddr("b2")
	mock.SetFills(addr, testhelpers.RoundTripFills("BTC", 100, 110, time.Now().Add(-time.Hour), time.Minute))

	e.profileOne(addr)

	p, err := st.Profiles.Get(addr)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, int64(1), e.profileSkips.Load())
}

func TestProfileOneIgnoresFillsOutsideWindow(t *testing.T) {
	e, st, mock := newTestEngine(t)

	addr := testAddr("b4")
	var fills []domain.Fill
	ancient := time.Now().Add(-90 * 24 * time.Hour)
	for i := 0; i < 8; i++ {
		fills = append(fills, testhelpers.RoundTripFills("BTC", 100, 90, ancient.Add(time.Duration(i)*24*time.Hour), 2*time.Hour)...)
	}
	recent := time.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < 6; i++ {
		fills = append(fills, testhelpers.RoundTripFills("ETH", 100, 108, recent.Add(time.Duration(i)*24*time.Hour), 2*time.Hour)...)
	}
	mock.SetFills(addr, fills)

	e.profileOne(addr)

	p, err := st.Profiles.Get(addr)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 6, p.TradeCount, "round trips older than the profile window must not count")
	assert.Equal(t, 1.0, p.WinRate)
}

func TestFailedProfileStaysDedupedUntilTTL(t *testing.T) {
	e, _, mock := newTestEngine(t)
	mock.SetError(errors.New("exchange down"))

	addr := testAddr("b3")
	require.True(t, e.queue.enqueue(addr))

	popped, ok := e.queue.pop(time.Second)
	require.True(t, ok)
	require.Equal(t, addr, popped)

	e.profileOne(addr)
	assert.Equal(t, int64(1), e.profileFailures.Load())

	// The fetch failed, so the dedupe entry must survive: re-enqueuing
	// the same address inside the TTL would burn fills weight on every
	// ranking cycle.
	assert.False(t, e.queue.enqueue(addr))
}

func TestRankingsAttachProfilesAndQueueUnprofiled(t *testing.T) {
	e, st, _ := newTestEngine(t)

	winner := testAddr("c1")
	unknown := testAddr("c2")

	// Two snapshots 24h apart for both addresses.
	earlier := time.Now().Add(-23 * time.Hour)
	require.NoError(t, st.Snapshots.InsertEquityBatch([]domain.EquitySnapshot{
		{Address: winner, Equity: 100000},
		{Address: unknown, Equity: 50000},
	}, earlier))
	require.NoError(t, st.Snapshots.InsertEquityBatch([]domain.EquitySnapshot{
		{Address: winner, Equity: 150000},
		{Address: unknown, Equity: 51000},
	}, time.Now()))

	require.NoError(t, st.Profiles.Upsert(domain.Profile{
		Address: winner, TradeCount: 20, WinRate: 0.7, Style: domain.StyleSwing, UpdatedAt: time.Now(),
	}))
	require.NoError(t, st.Positions.ReplaceBatch([]domain.Position{
		testhelpers.NewPosition(winner, "BTC", 500000),
	}))

	rankings, err := e.Rankings(10, Filters{})
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	assert.Equal(t, winner, rankings[0].Address)
	assert.InDelta(t, 50.0, rankings[0].GrowthPct, 1e-6)
	require.NotNil(t, rankings[0].Profile)
	assert.Equal(t, 0.7, rankings[0].Profile.WinRate)
	assert.Len(t, rankings[0].Positions, 1)

	assert.Nil(t, rankings[1].Profile)
	assert.Equal(t, 1, e.queue.len(), "unprofiled ranked wallet gets queued")
}

func TestRankingsFilters(t *testing.T) {
	e, st, _ := newTestEngine(t)

	seed := func(suffix string, winRate float64, style string, isBot bool, trades int) string {
		addr := testAddr(suffix)
		earlier := time.Now().Add(-23 * time.Hour)
		require.NoError(t, st.Snapshots.InsertEquityBatch([]domain.EquitySnapshot{{Address: addr, Equity: 100000}}, earlier))
		require.NoError(t, st.Snapshots.InsertEquityBatch([]domain.EquitySnapshot{{Address: addr, Equity: 120000}}, time.Now()))
		require.NoError(t, st.Profiles.Upsert(domain.Profile{
			Address: addr, TradeCount: trades, WinRate: winRate, Style: style, IsBot: isBot, UpdatedAt: time.Now(),
		}))
		return addr
	}

	good := seed("d1", 0.7, domain.StyleSwing, false, 30)
	seed("d2", 0.4, domain.StyleSwing, false, 30)     // low win rate
	seed("d3", 0.7, domain.StyleScalper, true, 300)   // bot
	seed("d4", 0.7, domain.StyleDayTrader, false, 3)  // too few trades

	rankings, err := e.Rankings(50, Filters{
		MinWinRate:  0.5,
		Styles:      []string{domain.StyleSwing},
		ExcludeBots: true,
		MinTrades:   10,
	})
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, good, rankings[0].Address)
}

func TestCurateRespectsGatesAndThresholds(t *testing.T) {
	e, st, _ := newTestEngine(t)

	addr := testAddr("e1")
	earlier := time.Now().Add(-23 * time.Hour)
	require.NoError(t, st.Snapshots.InsertEquityBatch([]domain.EquitySnapshot{{Address: addr, Equity: 100000}}, earlier))
	require.NoError(t, st.Snapshots.InsertEquityBatch([]domain.EquitySnapshot{{Address: addr, Equity: 160000}}, time.Now()))
	require.NoError(t, st.Profiles.Upsert(domain.Profile{
		Address: addr, TradeCount: 40, WinRate: 0.8, Style: domain.StyleSwing, UpdatedAt: time.Now(),
	}))

	// Disabled: no writes.
	require.NoError(t, e.Curate())
	active, err := st.Watchlist.ActiveAddresses()
	require.NoError(t, err)
	assert.Empty(t, active)

	e.cfg.AutoCurateEnabled = true
	require.NoError(t, e.Curate())

	entry, err := st.Watchlist.Get(addr)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "auto", entry.Label)
}

func TestEnqueueForRefreshDedupes(t *testing.T) {
	e, _, _ := newTestEngine(t)

	queued := e.EnqueueForRefresh([]string{testAddr("f1"), testAddr("f2"), testAddr("f1")})
	assert.Equal(t, 2, queued)
	assert.Equal(t, 2, e.queue.len())
}
