package hyperliquid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/domain"
)

func decodeUserState(t *testing.T, raw string) *wireUserState {
	t.Helper()
	var state wireUserState
	require.NoError(t, json.Unmarshal([]byte(raw), &state))
	return &state
}

func TestParseUserState(t *testing.T) {
	raw := decodeUserState(t, `{
		"assetPositions": [
			{"position": {
				"coin": "BTC", "szi": "0.5", "entryPx": "100000",
				"positionValue": "51000", "liquidationPx": "90000",
				"unrealizedPnl": "1000", "leverage": {"value": 10}
			}},
			{"position": {
				"coin": "ETH", "szi": "-10", "entryPx": "3000",
				"positionValue": "29500", "liquidationPx": "3300",
				"unrealizedPnl": "500", "leverage": {"value": 5}
			}}
		],
		"marginSummary": {"accountValue": "125000.5", "totalUnrealizedPnl": "1500.25"}
	}`)

	state := ParseUserState("0xabc", raw)
	require.Len(t, state.Positions, 2)
	assert.InDelta(t, 125000.5, state.Equity, 0.001)
	assert.InDelta(t, 1500.25, state.Unrealized, 0.001)

	btc := state.Positions[0]
	assert.Equal(t, domain.SideLong, btc.Side)
	assert.InDelta(t, 0.5, btc.Size, 1e-9)
	assert.InDelta(t, 51000, btc.SizeUSD, 0.001)
	// mark = positionValue / |szi|
	assert.InDelta(t, 102000, btc.MarkPx, 0.001)
	require.NotNil(t, btc.LiqPx)
	assert.InDelta(t, 90000, *btc.LiqPx, 0.001)

	eth := state.Positions[1]
	assert.Equal(t, domain.SideShort, eth.Side)
	assert.InDelta(t, 10, eth.Size, 1e-9)
}

func TestParseUserStateGuards(t *testing.T) {
	raw := decodeUserState(t, `{
		"assetPositions": [
			{"position": {"coin": "BTC", "szi": "1", "entryPx": "0"}},
			{"position": {"coin": "", "szi": "1", "entryPx": "100"}},
			{"position": {"coin": "ETH", "szi": "0", "entryPx": "3000"}},
			{"position": {
				"coin": "SOL", "szi": "100", "entryPx": "200",
				"liquidationPx": "-5", "leverage": {"value": "9999"}
			}}
		],
		"marginSummary": {"accountValue": "NaN"}
	}`)

	state := ParseUserState("0xabc", raw)

	// Only SOL survives: zero entry, empty coin and zero size are dropped.
	require.Len(t, state.Positions, 1)
	sol := state.Positions[0]
	assert.Equal(t, "SOL", sol.Coin)
	// Corrupt leverage clamped, non-positive liq price nulled.
	assert.InDelta(t, maxLeverage, sol.Leverage, 0.001)
	assert.Nil(t, sol.LiqPx)
	// Missing positionValue falls back to size * entry.
	assert.InDelta(t, 20000, sol.SizeUSD, 0.001)
	assert.InDelta(t, 200, sol.MarkPx, 0.001)
	// Non-finite equity maps to the default.
	assert.InDelta(t, 0, state.Equity, 0.001)
}

func TestParseWSTrade(t *testing.T) {
	trade, ok := ParseWSTrade(WSTrade{Coin: "BTC", Side: "B", Px: "100000", Sz: "0.1", Time: 1700000000000})
	require.True(t, ok)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.InDelta(t, 100000, trade.Price, 0.001)
	assert.InDelta(t, 0.1, trade.Size, 1e-9)

	trade, ok = ParseWSTrade(WSTrade{Coin: "ETH", Side: "A", Px: 3000.0, Sz: 1.0})
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, trade.Side)

	cases := []WSTrade{
		{Coin: "", Side: "B", Px: "1", Sz: "1"},
		{Coin: "BTC", Side: "X", Px: "1", Sz: "1"},
		{Coin: "BTC", Side: "B", Px: "0", Sz: "1"},
		{Coin: "BTC", Side: "B", Px: "1", Sz: "-2"},
		{Coin: "BTC", Side: "B", Px: "not-a-number", Sz: "1"},
	}
	for _, c := range cases {
		_, ok := ParseWSTrade(c)
		assert.False(t, ok, "expected rejection for %+v", c)
	}
}

func TestWSTradeLiquidationFlag(t *testing.T) {
	assert.False(t, WSTrade{}.IsLiq())
	assert.True(t, WSTrade{Liquidation: true}.IsLiq())
	assert.True(t, WSTrade{IsLiquidation: true}.IsLiq())
	assert.True(t, WSTrade{Liquidation: map[string]interface{}{"liquidatedUser": "0xabc"}}.IsLiq())
	assert.False(t, WSTrade{Liquidation: false}.IsLiq())
	assert.False(t, WSTrade{Liquidation: "false"}.IsLiq())
	assert.False(t, WSTrade{IsLiquidation: 0.0}.IsLiq())
}

func TestParseFillOrderAndGuards(t *testing.T) {
	fill, ok := parseFill(wireFill{Coin: "BTC", Px: "100", Sz: "1", Side: "B", Dir: "Open Long", Time: 1000})
	require.True(t, ok)
	assert.True(t, fill.Opens())
	assert.Equal(t, domain.SideBuy, fill.Side)

	_, ok = parseFill(wireFill{Coin: "BTC", Px: "0", Sz: "1", Side: "B"})
	assert.False(t, ok)
	_, ok = parseFill(wireFill{Coin: "", Px: "100", Sz: "1", Side: "B"})
	assert.False(t, ok)
}
