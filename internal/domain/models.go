// Package domain provides the core market-intelligence models and error
// kinds shared by collectors, engines, storage, and the read API.
package domain

import (
	"strings"
	"time"
)

// Trade sides as normalised from the exchange feed.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position sides.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Change event types emitted by the position change tracker.
const (
	ChangeEntry    = "entry"
	ChangeExit     = "exit"
	ChangeFlip     = "flip"
	ChangeIncrease = "increase"
)

// Trading style labels assigned by the wallet profiler.
const (
	StyleScalper   = "scalper"
	StyleDayTrader = "day_trader"
	StyleSwing     = "swing"
	StylePosition  = "position"
)

// Trade is a single executed trade as held in the in-memory ring buffers.
// Buffered trades are never persisted.
type Trade struct {
	Coin   string  `json:"coin"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	TimeMS int64   `json:"time_ms"`
}

// NotionalUSD returns the trade's notional value.
func (t Trade) NotionalUSD() float64 {
	return t.Price * t.Size
}

// Position is one open perpetual position for an address and instrument.
// LiqPx is nil when the exchange reports no liquidation price.
type Position struct {
	UpdatedAt     time.Time `json:"updated_at"`
	LiqPx         *float64  `json:"liq_px,omitempty"`
	Address       string    `json:"address"`
	Coin          string    `json:"coin"`
	Side          string    `json:"side"`
	Size          float64   `json:"size"`
	SizeUSD       float64   `json:"size_usd"`
	EntryPx       float64   `json:"entry_px"`
	MarkPx        float64   `json:"mark_px"`
	Leverage      float64   `json:"leverage"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// AccountState is the parsed clearinghouse state for one address.
type AccountState struct {
	Address    string     `json:"address"`
	Positions  []Position `json:"positions"`
	Equity     float64    `json:"equity"`
	Unrealized float64    `json:"unrealized"`
}

// ActiveCoins returns the set of instruments with an open position.
func (s AccountState) ActiveCoins() []string {
	coins := make([]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		coins = append(coins, p.Coin)
	}
	return coins
}

// DiscoveredAddress accumulates one trade participant pending a flush to
// the address registry.
type DiscoveredAddress struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Address    string
	TradeCount int
}

// LiquidationEvent records a forced close observed on the trade feed.
// Side is the side of the liquidated position.
type LiquidationEvent struct {
	Time        time.Time `json:"time"`
	Coin        string    `json:"coin"`
	Side        string    `json:"side"`
	Address     string    `json:"address"`
	Price       float64   `json:"price"`
	Size        float64   `json:"size"`
	NotionalUSD float64   `json:"notional_usd"`
}

// ChangeEvent records a watched wallet's position transition.
type ChangeEvent struct {
	CreatedAt   time.Time `json:"created_at"`
	Address     string    `json:"address"`
	Coin        string    `json:"coin"`
	EventType   string    `json:"event_type"`
	Side        string    `json:"side"`
	PrevSizeUSD float64   `json:"prev_size_usd"`
	NewSizeUSD  float64   `json:"new_size_usd"`
	MarkPx      float64   `json:"mark_px"`
}

// EquitySnapshot is one account-equity observation with the open
// unrealized pnl at that moment.
type EquitySnapshot struct {
	CreatedAt  time.Time `json:"created_at"`
	Address    string    `json:"address"`
	Equity     float64   `json:"equity"`
	Unrealized float64   `json:"unrealized"`
}

// EquityGrowth ranks an address by its absolute equity change over the
// lookback window. The percentage rides along for display.
type EquityGrowth struct {
	Address     string  `json:"address"`
	FirstEquity float64 `json:"first_equity"`
	LastEquity  float64 `json:"last_equity"`
	PnL24h      float64 `json:"pnl_24h"`
	GrowthPct   float64 `json:"growth_pct"`
	Snapshots   int     `json:"snapshots"`
}

// HLPSnapshot is one observation of a vault position.
type HLPSnapshot struct {
	CreatedAt time.Time `json:"created_at"`
	Vault     string    `json:"vault"`
	Coin      string    `json:"coin"`
	Side      string    `json:"side"`
	SizeUSD   float64   `json:"size_usd"`
	EntryPx   float64   `json:"entry_px"`
}

// Fill is a normalised account fill used for wallet profiling. Dir carries
// the exchange direction label ("Open Long", "Close Short", ...).
type Fill struct {
	Coin   string  `json:"coin"`
	Dir    string  `json:"dir"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	TimeMS int64   `json:"time_ms"`
}

// Opens reports whether the fill opens position size.
func (f Fill) Opens() bool {
	return strings.HasPrefix(f.Dir, "Open")
}

// Closes reports whether the fill closes position size.
func (f Fill) Closes() bool {
	return strings.HasPrefix(f.Dir, "Close")
}

// Profile is the behavioural profile computed from an address's fills.
type Profile struct {
	UpdatedAt      time.Time `json:"updated_at"`
	Address        string    `json:"address"`
	Style          string    `json:"style"`
	TradeCount     int       `json:"trade_count"`
	WinRate        float64   `json:"win_rate"`
	AvgHoldHours   float64   `json:"avg_hold_hours"`
	AvgPnLPct      float64   `json:"avg_pnl_pct"`
	ProfitFactor   float64   `json:"profit_factor"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	TradesPerDay   float64   `json:"trades_per_day"`
	IsBot          bool      `json:"is_bot"`
}

// WatchedWallet is a watchlist entry. Inactive entries keep their history
// but stop producing change events. Notes and tags are free-form operator
// annotations; tags are comma-separated.
type WatchedWallet struct {
	CreatedAt time.Time `json:"created_at"`
	Address   string    `json:"address"`
	Label     string    `json:"label"`
	Notes     string    `json:"notes"`
	Tags      string    `json:"tags"`
	Active    bool      `json:"active"`
}

// FeatureRow is one reconstructed feature vector written by the backfill.
type FeatureRow struct {
	BucketedAt time.Time `json:"bucketed_at"`
	RunID      string    `json:"run_id"`
	Coin       string    `json:"coin"`
	RSI14      float64   `json:"rsi_14"`
	EMA20      float64   `json:"ema_20"`
	ATR14      float64   `json:"atr_14"`
	RetMean    float64   `json:"ret_mean"`
	RetStd     float64   `json:"ret_std"`
	BuyRatio   float64   `json:"buy_ratio"`
	VolUSD     float64   `json:"vol_usd"`
	TradeCount int       `json:"trade_count"`
}
