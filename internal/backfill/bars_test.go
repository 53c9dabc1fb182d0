package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveTrade(side, px, sz string, at time.Time) ArchiveTrade {
	return ArchiveTrade{
		Coin:   "BTC",
		Side:   side,
		Px:     px,
		Sz:     sz,
		TimeMS: at.UnixMilli(),
	}
}

func TestMinuteBarsBucketsAndAggregates(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	bars := MinuteBars([]ArchiveTrade{
		archiveTrade("buy", "100", "1", base.Add(5*time.Second)),
		archiveTrade("sell", "110", "2", base.Add(30*time.Second)),
		archiveTrade("buy", "105", "1", base.Add(59*time.Second)),
		// Next minute, after a one-minute gap's worth of silence.
		archiveTrade("sell", "90", "1", base.Add(2*time.Minute)),
	})

	require.Len(t, bars, 2)

	first := bars[0]
	assert.Equal(t, base, first.Start)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 110.0, first.High)
	assert.Equal(t, 100.0, first.Low)
	assert.Equal(t, 105.0, first.Close)
	assert.Equal(t, 100.0+220.0+105.0, first.VolumeUSD)
	assert.Equal(t, 100.0+105.0, first.BuyVolumeUSD)
	assert.Equal(t, 3, first.Trades)

	second := bars[1]
	assert.Equal(t, base.Add(2*time.Minute), second.Start)
	assert.Equal(t, 90.0, second.Open)
	assert.Equal(t, 1, second.Trades)
}

func TestMinuteBarsDropsMalformedTrades(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	bars := MinuteBars([]ArchiveTrade{
		archiveTrade("buy", "not-a-number", "1", base),
		archiveTrade("buy", "100", "0", base),
		archiveTrade("buy", "100", "1", base),
	})

	require.Len(t, bars, 1)
	assert.Equal(t, 1, bars[0].Trades)
	assert.Equal(t, 100.0, bars[0].VolumeUSD)
}

func TestMinuteBarsEmptyInput(t *testing.T) {
	assert.Empty(t, MinuteBars(nil))
}
