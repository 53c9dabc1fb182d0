package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hynous/hynous-data/internal/database"
	"github.com/hynous/hynous-data/internal/domain"
)

// PositionRepo manages the current open-position set, one row per
// (address, coin).
type PositionRepo struct {
	s *Store
}

// positionColumns matches scanPosition. Keep the two in sync.
const positionColumns = `address, coin, side, size, size_usd, entry_px, mark_px, liq_px, leverage, unrealized_pnl, updated_at`

// ReplaceBatch upserts all positions under one write-lock acquisition.
func (r *PositionRepo) ReplaceBatch(positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	const query = `
		INSERT OR REPLACE INTO positions
		(` + positionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.s.withWrite(func() error {
		return database.WithTransaction(r.s.db.Conn(), func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(query)
			if err != nil {
				return fmt.Errorf("failed to prepare position upsert: %w", err)
			}
			defer stmt.Close()

			for _, p := range positions {
				var liqPx interface{}
				if p.LiqPx != nil {
					liqPx = *p.LiqPx
				}
				_, err := stmt.Exec(
					p.Address, p.Coin, p.Side, p.Size, p.SizeUSD,
					p.EntryPx, p.MarkPx, liqPx, p.Leverage, p.UnrealizedPnL,
					p.UpdatedAt.Unix(),
				)
				if err != nil {
					return fmt.Errorf("failed to upsert position %s/%s: %w", p.Address, p.Coin, err)
				}
			}
			return nil
		})
	})
}

// DeleteMissing removes the address's rows for coins no longer open.
// An empty activeCoins deletes every position for the address.
func (r *PositionRepo) DeleteMissing(address string, activeCoins []string) error {
	return r.s.withWrite(func() error {
		if len(activeCoins) == 0 {
			if _, err := r.s.db.Exec("DELETE FROM positions WHERE address = ?", address); err != nil {
				return fmt.Errorf("failed to delete positions for %s: %w", address, err)
			}
			return nil
		}

		placeholders := strings.Repeat("?,", len(activeCoins))
		placeholders = placeholders[:len(placeholders)-1]
		query := "DELETE FROM positions WHERE address = ? AND coin NOT IN (" + placeholders + ")"

		args := make([]interface{}, 0, len(activeCoins)+1)
		args = append(args, address)
		for _, coin := range activeCoins {
			args = append(args, coin)
		}

		if _, err := r.s.db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete closed positions for %s: %w", address, err)
		}
		return nil
	})
}

// ByAddresses returns open positions grouped by address.
func (r *PositionRepo) ByAddresses(addrs []string) (map[string][]domain.Position, error) {
	result := make(map[string][]domain.Position)
	if len(addrs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(addrs))
	placeholders = placeholders[:len(placeholders)-1]
	query := "SELECT " + positionColumns + " FROM positions WHERE address IN (" + placeholders + ") ORDER BY size_usd DESC"

	args := make([]interface{}, len(addrs))
	for i, a := range addrs {
		args[i] = a
	}

	rows, err := r.s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions by addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		result[p.Address] = append(result[p.Address], p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return result, nil
}

// TopByCoin returns the n largest positions on the instrument by USD size.
func (r *PositionRepo) TopByCoin(coin string, n int) ([]domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE coin = ? ORDER BY size_usd DESC LIMIT ?"

	rows, err := r.s.db.Query(query, coin, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top positions: %w", err)
	}

	return positions, nil
}

// SideTotals aggregates open interest per side for the instrument, plus
// the oldest updated_at so callers can report data age.
type SideTotals struct {
	LongUSD  float64
	ShortUSD float64
	Oldest   time.Time
	Count    int64
}

// TotalsByCoin returns the side totals for one instrument.
func (r *PositionRepo) TotalsByCoin(coin string) (SideTotals, error) {
	const query = `
		SELECT
			COALESCE(SUM(CASE WHEN side = 'long' THEN size_usd ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN side = 'short' THEN size_usd ELSE 0 END), 0),
			COALESCE(MIN(updated_at), 0),
			COUNT(*)
		FROM positions WHERE coin = ?
	`

	var totals SideTotals
	var oldest int64
	err := r.s.db.QueryRow(query, coin).Scan(&totals.LongUSD, &totals.ShortUSD, &oldest, &totals.Count)
	if err != nil {
		return SideTotals{}, fmt.Errorf("failed to aggregate side totals: %w", err)
	}
	if oldest > 0 {
		totals.Oldest = time.Unix(oldest, 0)
	}
	return totals, nil
}

// CoinsWithPositions returns the distinct instruments that currently have
// at least one open position.
func (r *PositionRepo) CoinsWithPositions() ([]string, error) {
	rows, err := r.s.db.Query("SELECT DISTINCT coin FROM positions ORDER BY coin")
	if err != nil {
		return nil, fmt.Errorf("failed to query coins with positions: %w", err)
	}
	defer rows.Close()

	var coins []string
	for rows.Next() {
		var coin string
		if err := rows.Scan(&coin); err != nil {
			return nil, fmt.Errorf("failed to scan coin: %w", err)
		}
		coins = append(coins, coin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coins: %w", err)
	}

	return coins, nil
}

// LiqRow is the slice of a position the liquidation heatmap consumes.
type LiqRow struct {
	Side    string
	SizeUSD float64
	LiqPx   float64
}

// LiqRows returns the instrument's positions that carry a liquidation
// price.
func (r *PositionRepo) LiqRows(coin string) ([]LiqRow, error) {
	const query = `
		SELECT side, size_usd, liq_px FROM positions
		WHERE coin = ? AND liq_px IS NOT NULL
	`

	rows, err := r.s.db.Query(query, coin)
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidation rows: %w", err)
	}
	defer rows.Close()

	var result []LiqRow
	for rows.Next() {
		var row LiqRow
		if err := rows.Scan(&row.Side, &row.SizeUSD, &row.LiqPx); err != nil {
			return nil, fmt.Errorf("failed to scan liquidation row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating liquidation rows: %w", err)
	}

	return result, nil
}

// PruneOlderThan deletes positions not refreshed since the cutoff. A row
// that old means the address dropped out of polling; the position is no
// longer trustworthy.
func (r *PositionRepo) PruneOlderThan(cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.s.withWrite(func() error {
		result, err := r.s.db.Exec("DELETE FROM positions WHERE updated_at < ?", cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to prune stale positions: %w", err)
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	return deleted, err
}

// CountAll returns the number of open position rows.
func (r *PositionRepo) CountAll() (int64, error) {
	var count int64
	if err := r.s.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

// scanPosition reads one row in positionColumns order.
func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var p domain.Position
	var liqPx sql.NullFloat64
	var updatedAt int64

	err := rows.Scan(
		&p.Address, &p.Coin, &p.Side, &p.Size, &p.SizeUSD,
		&p.EntryPx, &p.MarkPx, &liqPx, &p.Leverage, &p.UnrealizedPnL,
		&updatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}

	if liqPx.Valid {
		v := liqPx.Float64
		p.LiqPx = &v
	}
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return p, nil
}
