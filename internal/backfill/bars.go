package backfill

import (
	"sort"
	"time"

	"github.com/hynous/hynous-data/internal/domain"
)

// Bar is one reconstructed minute candle with side-split volume.
type Bar struct {
	Start        time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	VolumeUSD    float64
	BuyVolumeUSD float64
	Trades       int
}

// MinuteBars buckets archive trades into chronological minute bars.
// Archive lines are chronological, so the first and last trade of a
// minute set open and close. Malformed trades (non-positive price or
// size) are dropped; empty minutes produce no bar.
func MinuteBars(trades []ArchiveTrade) []Bar {
	byMinute := make(map[int64]*Bar)
	for _, t := range trades {
		px, sz := t.Price(), t.Size()
		if px <= 0 || sz <= 0 {
			continue
		}

		minute := t.TimeMS / 60_000
		bar, ok := byMinute[minute]
		if !ok {
			bar = &Bar{
				Start: time.UnixMilli(minute * 60_000).UTC(),
				Open:  px,
				High:  px,
				Low:   px,
			}
			byMinute[minute] = bar
		}

		if px > bar.High {
			bar.High = px
		}
		if px < bar.Low {
			bar.Low = px
		}
		bar.Close = px

		notional := px * sz
		bar.VolumeUSD += notional
		if t.Side == domain.SideBuy {
			bar.BuyVolumeUSD += notional
		}
		bar.Trades++
	}

	bars := make([]Bar, 0, len(byMinute))
	for _, bar := range byMinute {
		bars = append(bars, *bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })

	return bars
}
