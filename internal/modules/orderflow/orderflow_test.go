package orderflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/buffers"
	"github.com/hynous/hynous-data/internal/domain"
	testhelpers "github.com/hynous/hynous-data/internal/testing"
)

func TestFlowsWindowedAggregation(t *testing.T) {
	registry := buffers.NewRegistry(100)
	now := time.Now()

	// Two buys and a sell inside the last minute, one older buy outside it
	// but inside five minutes.
	registry.Append(testhelpers.NewTrade("BTC", domain.SideBuy, 100, 10, now.Add(-3*time.Minute)))
	registry.Append(testhelpers.NewTrade("BTC", domain.SideBuy, 100, 5, now.Add(-30*time.Second)))
	registry.Append(testhelpers.NewTrade("BTC", domain.SideBuy, 100, 3, now.Add(-20*time.Second)))
	registry.Append(testhelpers.NewTrade("BTC", domain.SideSell, 100, 4, now.Add(-10*time.Second)))

	e := New(registry, []int{60, 300})
	flows := e.Flows("BTC")

	assert.Equal(t, "BTC", flows.Coin)
	assert.Equal(t, 4, flows.TotalTrades)

	oneMin, ok := flows.Windows["1m"]
	require.True(t, ok)
	assert.Equal(t, 800.0, oneMin.BuyVolumeUSD)
	assert.Equal(t, 400.0, oneMin.SellVolumeUSD)
	assert.Equal(t, 2, oneMin.BuyCount)
	assert.Equal(t, 1, oneMin.SellCount)
	assert.Equal(t, 400.0, oneMin.CVD)
	assert.InDelta(t, 66.67, oneMin.BuyPct, 0.01)

	fiveMin, ok := flows.Windows["5m"]
	require.True(t, ok)
	assert.Equal(t, 1800.0, fiveMin.BuyVolumeUSD)
	assert.Equal(t, 3, fiveMin.BuyCount)
	assert.Equal(t, 1400.0, fiveMin.CVD)
}

func TestFlowsEmptyBuffer(t *testing.T) {
	e := New(buffers.NewRegistry(100), []int{60, 300})
	flows := e.Flows("ETH")

	assert.Zero(t, flows.TotalTrades)
	assert.Empty(t, flows.Windows, "an instrument with no buffered trades reports no windows")
	assert.NotNil(t, flows.Windows)
}

func TestFlowsSellOnlyWindow(t *testing.T) {
	registry := buffers.NewRegistry(100)
	now := time.Now()
	registry.Append(testhelpers.NewTrade("SOL", domain.SideSell, 200, 2, now.Add(-5*time.Second)))

	e := New(registry, []int{60})
	flows := e.Flows("SOL")

	w := flows.Windows["1m"]
	assert.Equal(t, 400.0, w.SellVolumeUSD)
	assert.Equal(t, -400.0, w.CVD)
	assert.Zero(t, w.BuyPct)
}

func TestSummaryFiveMinuteCVD(t *testing.T) {
	registry := buffers.NewRegistry(100)
	now := time.Now()

	registry.Append(testhelpers.NewTrade("BTC", domain.SideBuy, 100, 10, now.Add(-time.Minute)))
	registry.Append(testhelpers.NewTrade("BTC", domain.SideSell, 100, 4, now.Add(-30*time.Second)))
	// Outside the five-minute window, must not count.
	registry.Append(testhelpers.NewTrade("ETH", domain.SideBuy, 50, 100, now.Add(-10*time.Minute)))
	registry.Append(testhelpers.NewTrade("ETH", domain.SideSell, 50, 2, now.Add(-time.Minute)))

	e := New(registry, []int{60})
	summary := e.Summary()

	assert.Equal(t, 600.0, summary["BTC"])
	assert.Equal(t, -100.0, summary["ETH"])
}
