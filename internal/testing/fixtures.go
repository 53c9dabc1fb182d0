package testing

import (
	"time"

	"github.com/hynous/hynous-data/internal/domain"
)

// NewPosition returns a long BTC position with sensible defaults.
// Override fields in the caller as needed.
func NewPosition(address, coin string, sizeUSD float64) domain.Position {
	liqPx := 90000.0
	return domain.Position{
		Address:   address,
		Coin:      coin,
		Side:      domain.SideLong,
		Size:      sizeUSD / 100000.0,
		SizeUSD:   sizeUSD,
		EntryPx:   100000,
		MarkPx:    100000,
		LiqPx:     &liqPx,
		Leverage:  10,
		UpdatedAt: time.Now(),
	}
}

// NewShortPosition returns a short position mirroring NewPosition.
func NewShortPosition(address, coin string, sizeUSD float64) domain.Position {
	p := NewPosition(address, coin, sizeUSD)
	p.Side = domain.SideShort
	liqPx := 110000.0
	p.LiqPx = &liqPx
	return p
}

// NewTrade returns a buffered trade stamped at the given time.
func NewTrade(coin, side string, price, size float64, at time.Time) domain.Trade {
	return domain.Trade{
		Coin:   coin,
		Side:   side,
		Price:  price,
		Size:   size,
		TimeMS: at.UnixMilli(),
	}
}

// RoundTripFills returns an open/close fill pair on one coin with the
// given entry and exit prices, held for the given duration.
func RoundTripFills(coin string, entryPx, exitPx float64, opened time.Time, hold time.Duration) []domain.Fill {
	return []domain.Fill{
		{
			Coin:   coin,
			Dir:    "Open Long",
			Side:   domain.SideBuy,
			Price:  entryPx,
			Size:   1,
			TimeMS: opened.UnixMilli(),
		},
		{
			Coin:   coin,
			Dir:    "Close Long",
			Side:   domain.SideSell,
			Price:  exitPx,
			Size:   1,
			TimeMS: opened.Add(hold).UnixMilli(),
		},
	}
}
