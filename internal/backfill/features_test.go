package backfill

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticBars builds n one-minute bars whose close drifts by step per
// bar, with fixed side-split volume.
func syntheticBars(n int, start float64, step float64) []Bar {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, n)
	px := start
	for i := range bars {
		bars[i] = Bar{
			Start:        base.Add(time.Duration(i) * time.Minute),
			Open:         px,
			High:         px + 1,
			Low:          px - 1,
			Close:        px + step,
			VolumeUSD:    1000,
			BuyVolumeUSD: 600,
			Trades:       10,
		}
		px += step
	}
	return bars
}

func TestComputeFeaturesSkipsWarmup(t *testing.T) {
	bars := syntheticBars(50, 100, 0.5)

	rows := ComputeFeatures("run-1", "BTC", bars)

	require.Len(t, rows, 50-warmupBars)
	assert.Equal(t, bars[warmupBars].Start, rows[0].BucketedAt)
	assert.Equal(t, "run-1", rows[0].RunID)
	assert.Equal(t, "BTC", rows[0].Coin)
}

func TestComputeFeaturesTooFewBars(t *testing.T) {
	assert.Nil(t, ComputeFeatures("run-1", "BTC", syntheticBars(warmupBars, 100, 0.5)))
}

func TestComputeFeaturesUptrendIndicators(t *testing.T) {
	// Strictly rising closes: RSI pegs at 100, returns are all positive.
	rows := ComputeFeatures("run-1", "BTC", syntheticBars(60, 100, 1))
	require.NotEmpty(t, rows)

	for _, row := range rows {
		assert.InDelta(t, 100.0, row.RSI14, 1e-9)
		assert.Greater(t, row.RetMean, 0.0)
		assert.GreaterOrEqual(t, row.RetStd, 0.0)
		assert.False(t, math.IsNaN(row.RetStd))
		assert.InDelta(t, 0.6, row.BuyRatio, 1e-9)
		assert.Equal(t, 1000.0, row.VolUSD)
		assert.Equal(t, 10, row.TradeCount)
	}
}

func TestComputeFeaturesFlatSeries(t *testing.T) {
	// No drift: every return is zero, EMA sits on the close.
	rows := ComputeFeatures("run-1", "ETH", syntheticBars(60, 3000, 0))
	require.NotEmpty(t, rows)

	for _, row := range rows {
		assert.InDelta(t, 0.0, row.RetMean, 1e-12)
		assert.InDelta(t, 0.0, row.RetStd, 1e-12)
		assert.InDelta(t, 3000.0, row.EMA20, 1e-6)
	}
}

func TestComputeFeaturesZeroVolumeBuyRatio(t *testing.T) {
	bars := syntheticBars(40, 100, 0.5)
	for i := range bars {
		bars[i].VolumeUSD = 0
		bars[i].BuyVolumeUSD = 0
	}

	rows := ComputeFeatures("run-1", "BTC", bars)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.Equal(t, 0.0, row.BuyRatio)
	}
}
