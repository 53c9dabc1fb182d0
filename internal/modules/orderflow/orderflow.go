// Package orderflow derives aggressor-volume statistics from the shared
// trade buffers. It holds no state of its own; every read walks a fresh
// buffer snapshot.
package orderflow

import (
	"time"

	"github.com/hynous/hynous-data/internal/buffers"
	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/utils"
)

// WindowFlow is the aggressor breakdown over one lookback window.
type WindowFlow struct {
	BuyVolumeUSD  float64 `json:"buy_volume_usd"`
	SellVolumeUSD float64 `json:"sell_volume_usd"`
	BuyCount      int     `json:"buy_count"`
	SellCount     int     `json:"sell_count"`
	CVD           float64 `json:"cvd"`
	BuyPct        float64 `json:"buy_pct"`
}

// Flows is the per-coin order-flow report.
type Flows struct {
	Coin        string                `json:"coin"`
	Windows     map[string]WindowFlow `json:"windows"`
	TotalTrades int                   `json:"total_trades"`
	ComputedAt  time.Time             `json:"computed_at"`
}

// Engine computes flow reports on demand over the buffer registry.
type Engine struct {
	registry *buffers.Registry
	windows  []int // seconds, ascending
}

func New(registry *buffers.Registry, windows []int) *Engine {
	return &Engine{registry: registry, windows: windows}
}

// Flows aggregates the coin's buffered trades over every configured
// window. Buffers are chronological, so each window walks from the
// newest trade backwards and stops at its cutoff.
func (e *Engine) Flows(coin string) Flows {
	trades := e.registry.Snapshot(coin)
	nowMS := time.Now().UnixMilli()

	result := Flows{
		Coin:        coin,
		Windows:     make(map[string]WindowFlow, len(e.windows)),
		TotalTrades: len(trades),
		ComputedAt:  time.Now(),
	}
	if len(trades) == 0 {
		return result
	}

	for _, window := range e.windows {
		cutoff := nowMS - int64(window)*1000
		var flow WindowFlow
		for i := len(trades) - 1; i >= 0; i-- {
			t := trades[i]
			if t.TimeMS < cutoff {
				break
			}
			notional := t.NotionalUSD()
			if t.Side == domain.SideBuy {
				flow.BuyVolumeUSD += notional
				flow.BuyCount++
			} else {
				flow.SellVolumeUSD += notional
				flow.SellCount++
			}
		}
		flow.CVD = flow.BuyVolumeUSD - flow.SellVolumeUSD
		if total := flow.BuyVolumeUSD + flow.SellVolumeUSD; total > 0 {
			flow.BuyPct = flow.BuyVolumeUSD / total * 100
		}
		result.Windows[utils.WindowLabel(window)] = flow
	}

	return result
}

// Summary returns the 5-minute CVD for every buffered instrument.
func (e *Engine) Summary() map[string]float64 {
	const windowMS = 5 * 60 * 1000
	cutoff := time.Now().UnixMilli() - windowMS

	out := make(map[string]float64)
	for coin, trades := range e.registry.AllSnapshots() {
		var cvd float64
		for i := len(trades) - 1; i >= 0; i-- {
			t := trades[i]
			if t.TimeMS < cutoff {
				break
			}
			if t.Side == domain.SideBuy {
				cvd += t.NotionalUSD()
			} else {
				cvd -= t.NotionalUSD()
			}
		}
		out[coin] = cvd
	}
	return out
}
