package backfill

import (
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/hynous/hynous-data/internal/domain"
)

const (
	rsiPeriod = 14
	emaPeriod = 20
	atrPeriod = 14

	// retWindow is the trailing span of minute returns behind the
	// ret_mean / ret_std columns.
	retWindow = 20

	// warmupBars is where the first fully-populated row appears: every
	// indicator needs its lookback filled before its output is real.
	warmupBars = 20
)

// ComputeFeatures turns a coin's minute bars into feature rows. Bars
// inside the indicator warmup produce no row.
func ComputeFeatures(runID, coin string, bars []Bar) []domain.FeatureRow {
	if len(bars) <= warmupBars {
		return nil
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	ema := talib.Ema(closes, emaPeriod)
	atr := talib.Atr(highs, lows, closes, atrPeriod)

	// Simple minute returns; returns[i] belongs to bars[i].
	returns := make([]float64, n)
	for i := 1; i < n; i++ {
		if closes[i-1] > 0 {
			returns[i] = (closes[i] - closes[i-1]) / closes[i-1]
		}
	}

	rows := make([]domain.FeatureRow, 0, n-warmupBars)
	for i := warmupBars; i < n; i++ {
		lo := i - retWindow + 1
		if lo < 1 {
			lo = 1
		}
		window := returns[lo : i+1]

		buyRatio := 0.0
		if bars[i].VolumeUSD > 0 {
			buyRatio = bars[i].BuyVolumeUSD / bars[i].VolumeUSD
		}

		rows = append(rows, domain.FeatureRow{
			BucketedAt: bars[i].Start,
			RunID:      runID,
			Coin:       coin,
			RSI14:      rsi[i],
			EMA20:      ema[i],
			ATR14:      atr[i],
			RetMean:    stat.Mean(window, nil),
			RetStd:     stat.StdDev(window, nil),
			BuyRatio:   buyRatio,
			VolUSD:     bars[i].VolumeUSD,
			TradeCount: bars[i].Trades,
		})
	}

	return rows
}
