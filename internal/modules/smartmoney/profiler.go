package smartmoney

import (
	"time"

	"github.com/hynous/hynous-data/internal/domain"
)

// maxProfitFactor caps the ratio for wallets with no recorded losses.
const maxProfitFactor = 999

// roundTrip is one matched entry/exit pair.
type roundTrip struct {
	pnlPct    float64
	holdHours float64
}

// profilerConfig carries the thresholds the profiler branches on.
type profilerConfig struct {
	minTrades       int
	botTradesPerDay float64
	botAvgHoldMin   float64
}

// recentFills keeps fills no older than windowDays. A non-positive
// window disables the cut.
func recentFills(fills []domain.Fill, windowDays int) []domain.Fill {
	if windowDays <= 0 {
		return fills
	}
	cutoff := time.Now().AddDate(0, 0, -windowDays).UnixMilli()
	out := make([]domain.Fill, 0, len(fills))
	for _, f := range fills {
		if f.TimeMS >= cutoff {
			out = append(out, f)
		}
	}
	return out
}

// buildProfile derives a behavioural profile from an address's fills,
// oldest first. Entries and exits are matched FIFO per coin, partial
// closes against the oldest open entry. Returns false when the fills
// yield fewer matched round trips than the minimum.
func buildProfile(address string, fills []domain.Fill, cfg profilerConfig) (domain.Profile, bool) {
	type entry struct {
		px     float64
		size   float64
		timeMS int64
		long   bool
	}
	open := make(map[string][]entry)
	var trips []roundTrip

	for _, f := range fills {
		switch {
		case f.Opens():
			if f.Price <= 0 {
				continue
			}
			open[f.Coin] = append(open[f.Coin], entry{
				px:     f.Price,
				size:   f.Size,
				timeMS: f.TimeMS,
				long:   f.Dir == "Open Long",
			})
		case f.Closes():
			remaining := f.Size
			queue := open[f.Coin]
			for remaining > 0 && len(queue) > 0 {
				e := &queue[0]
				matched := remaining
				if e.size < matched {
					matched = e.size
				}

				pnlPct := (f.Price - e.px) / e.px * 100
				if !e.long {
					pnlPct = -pnlPct
				}
				trips = append(trips, roundTrip{
					pnlPct:    pnlPct,
					holdHours: float64(f.TimeMS-e.timeMS) / 3600_000,
				})

				e.size -= matched
				remaining -= matched
				if e.size <= 0 {
					queue = queue[1:]
				}
			}
			open[f.Coin] = queue
		}
	}

	if len(trips) < cfg.minTrades {
		return domain.Profile{}, false
	}

	var wins int
	var sumPnL, sumHold, grossProfit, grossLoss float64
	var cumPnL, peak, maxDrawdown float64
	for _, trip := range trips {
		sumPnL += trip.pnlPct
		sumHold += trip.holdHours
		if trip.pnlPct > 0 {
			wins++
			grossProfit += trip.pnlPct
		} else {
			grossLoss += -trip.pnlPct
		}

		cumPnL += trip.pnlPct
		if cumPnL > peak {
			peak = cumPnL
		}
		if dd := peak - cumPnL; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	n := float64(len(trips))
	profitFactor := float64(maxProfitFactor)
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
		if profitFactor > maxProfitFactor {
			profitFactor = maxProfitFactor
		}
	}

	spanDays := float64(fills[len(fills)-1].TimeMS-fills[0].TimeMS) / 86_400_000
	tradesPerDay := n
	if spanDays > 1 {
		tradesPerDay = n / spanDays
	}

	avgHold := sumHold / n
	return domain.Profile{
		Address:        address,
		TradeCount:     len(trips),
		WinRate:        float64(wins) / n,
		AvgHoldHours:   avgHold,
		AvgPnLPct:      sumPnL / n,
		ProfitFactor:   profitFactor,
		MaxDrawdownPct: maxDrawdown,
		TradesPerDay:   tradesPerDay,
		IsBot:          tradesPerDay > cfg.botTradesPerDay && avgHold*60 < cfg.botAvgHoldMin,
		Style:          styleFor(avgHold),
		UpdatedAt:      time.Now(),
	}, true
}

// styleFor buckets a wallet by its average hold time.
func styleFor(avgHoldHours float64) string {
	switch {
	case avgHoldHours < 1:
		return domain.StyleScalper
	case avgHoldHours < 24:
		return domain.StyleDayTrader
	case avgHoldHours < 168:
		return domain.StyleSwing
	default:
		return domain.StylePosition
	}
}
