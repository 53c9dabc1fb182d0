package hyperliquid

import (
	"math"
	"time"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/utils"
)

// Leverage outside [0, 200] means the payload is corrupt; clamp rather
// than drop the position.
const maxLeverage = 200

// ParseUserState converts the raw clearinghouse state into the domain
// model, applying the guards shared by the poller, the HLP tracker, and
// the profiler:
//
//   - a position without a positive entry price is dropped
//   - leverage is clamped to [0, 200]
//   - liquidationPx <= 0 becomes nil
//   - mark price derives from positionValue/|szi|, falling back to entry
//   - side comes from the sign of szi; zero-size rows are dropped
func ParseUserState(address string, raw *wireUserState) *domain.AccountState {
	state := &domain.AccountState{
		Address:    address,
		Equity:     utils.SafeFloat(raw.MarginSummary.AccountValue, 0),
		Unrealized: utils.SafeFloat(raw.MarginSummary.TotalUnrealizedPnl, 0),
	}

	now := time.Now()
	for _, ap := range raw.AssetPositions {
		pos, ok := parsePosition(address, ap.Position, now)
		if !ok {
			continue
		}
		state.Positions = append(state.Positions, pos)
	}

	return state
}

func parsePosition(address string, wp wirePosition, now time.Time) (domain.Position, bool) {
	if wp.Coin == "" {
		return domain.Position{}, false
	}

	szi := utils.SafeFloat(wp.Szi, 0)
	if szi == 0 {
		return domain.Position{}, false
	}

	entryPx := utils.SafeFloat(wp.EntryPx, 0)
	if entryPx <= 0 {
		return domain.Position{}, false
	}

	side := domain.SideLong
	if szi < 0 {
		side = domain.SideShort
	}
	size := math.Abs(szi)

	sizeUSD := math.Abs(utils.SafeFloat(wp.PositionValue, 0))
	markPx := entryPx
	if sizeUSD > 0 {
		markPx = sizeUSD / size
	} else {
		sizeUSD = size * entryPx
	}

	leverage := utils.Clamp(utils.SafeFloat(wp.Leverage.Value, 0), 0, maxLeverage)

	var liqPx *float64
	if v := utils.SafeFloat(wp.LiquidationPx, 0); v > 0 {
		liqPx = &v
	}

	return domain.Position{
		Address:       address,
		Coin:          wp.Coin,
		Side:          side,
		Size:          size,
		SizeUSD:       sizeUSD,
		EntryPx:       entryPx,
		MarkPx:        markPx,
		LiqPx:         liqPx,
		Leverage:      leverage,
		UnrealizedPnL: utils.SafeFloat(wp.UnrealizedPnl, 0),
		UpdatedAt:     now,
	}, true
}

// parseFill validates and converts one raw fill.
func parseFill(wf wireFill) (domain.Fill, bool) {
	px := utils.SafeFloat(wf.Px, 0)
	sz := utils.SafeFloat(wf.Sz, 0)
	if wf.Coin == "" || px <= 0 || sz <= 0 {
		return domain.Fill{}, false
	}

	side := domain.SideBuy
	if wf.Side == "A" {
		side = domain.SideSell
	}

	return domain.Fill{
		Coin:   wf.Coin,
		Dir:    wf.Dir,
		Side:   side,
		Price:  px,
		Size:   sz,
		TimeMS: wf.Time,
	}, true
}

// ParseWSTrade validates one trade frame from the trades channel.
// Invalid frames (empty coin, non-positive price or size, unknown side)
// return false.
func ParseWSTrade(wt WSTrade) (domain.Trade, bool) {
	if wt.Coin == "" {
		return domain.Trade{}, false
	}
	if wt.Side != "B" && wt.Side != "A" {
		return domain.Trade{}, false
	}

	px := utils.SafeFloat(wt.Px, 0)
	sz := utils.SafeFloat(wt.Sz, 0)
	if px <= 0 || sz <= 0 {
		return domain.Trade{}, false
	}

	side := domain.SideBuy
	if wt.Side == "A" {
		side = domain.SideSell
	}

	return domain.Trade{
		Coin:   wt.Coin,
		Side:   side,
		Price:  px,
		Size:   sz,
		TimeMS: wt.Time,
	}, true
}
