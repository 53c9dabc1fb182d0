// Package whales ranks the largest stored positions per instrument.
package whales

import (
	"time"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/store"
	"github.com/hynous/hynous-data/internal/utils"
)

const (
	minTopN = 1
	maxTopN = 500
)

// Report is the ranked whale view for one instrument.
type Report struct {
	Coin          string            `json:"coin"`
	Positions     []domain.Position `json:"positions"`
	TotalLongUSD  float64           `json:"total_long_usd"`
	TotalShortUSD float64           `json:"total_short_usd"`
	NetUSD        float64           `json:"net_usd"`
	PositionCount int               `json:"position_count"`
	OldestUpdate  time.Time         `json:"oldest_update"`
}

// Tracker serves whale rankings straight from the store.
type Tracker struct {
	st *store.Store
}

func New(st *store.Store) *Tracker {
	return &Tracker{st: st}
}

// Top returns the topN largest positions for the coin plus side totals.
// topN is clamped to [1, 500]. An instrument with no positions yields an
// empty, well-formed report.
func (t *Tracker) Top(coin string, topN int) (*Report, error) {
	topN = utils.ClampInt(topN, minTopN, maxTopN)

	positions, err := t.st.Positions.TopByCoin(coin, topN)
	if err != nil {
		return nil, err
	}

	totals, err := t.st.Positions.TotalsByCoin(coin)
	if err != nil {
		return nil, err
	}

	return &Report{
		Coin:          coin,
		Positions:     positions,
		TotalLongUSD:  totals.LongUSD,
		TotalShortUSD: totals.ShortUSD,
		NetUSD:        totals.LongUSD - totals.ShortUSD,
		PositionCount: int(totals.Count),
		OldestUpdate:  totals.Oldest,
	}, nil
}
