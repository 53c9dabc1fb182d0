package store

import (
	"fmt"
	"time"

	"github.com/hynous/hynous-data/internal/domain"
)

// LiquidationRepo records forced closes observed on the trade feed.
type LiquidationRepo struct {
	s *Store
}

// Insert records one liquidation event.
func (r *LiquidationRepo) Insert(ev domain.LiquidationEvent) error {
	const query = `
		INSERT INTO liquidations (coin, side, address, price, size, notional_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	return r.s.withWrite(func() error {
		_, err := r.s.db.Exec(query,
			ev.Coin, ev.Side, ev.Address, ev.Price, ev.Size, ev.NotionalUSD, ev.Time.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert liquidation: %w", err)
		}
		return nil
	})
}

// RecentByCoin returns the instrument's liquidations from the last
// `minutes` minutes, newest first.
func (r *LiquidationRepo) RecentByCoin(coin string, minutes int) ([]domain.LiquidationEvent, error) {
	const query = `
		SELECT coin, side, address, price, size, notional_usd, created_at
		FROM liquidations
		WHERE coin = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute).Unix()
	rows, err := r.s.db.Query(query, coin, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidations: %w", err)
	}
	defer rows.Close()

	var events []domain.LiquidationEvent
	for rows.Next() {
		var ev domain.LiquidationEvent
		var createdAt int64
		if err := rows.Scan(&ev.Coin, &ev.Side, &ev.Address, &ev.Price, &ev.Size, &ev.NotionalUSD, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan liquidation: %w", err)
		}
		ev.Time = time.Unix(createdAt, 0)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating liquidations: %w", err)
	}

	return events, nil
}
