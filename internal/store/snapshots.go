package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hynous/hynous-data/internal/database"
	"github.com/hynous/hynous-data/internal/domain"
)

// SnapshotRepo manages the equity and vault time series.
type SnapshotRepo struct {
	s *Store
}

// InsertEquityBatch records one equity observation per address, all
// stamped with now. Re-running in the same second replaces rather than
// duplicates.
func (r *SnapshotRepo) InsertEquityBatch(snaps []domain.EquitySnapshot, now time.Time) error {
	if len(snaps) == 0 {
		return nil
	}

	const query = `
		INSERT OR REPLACE INTO pnl_snapshots (address, equity, unrealized, created_at)
		VALUES (?, ?, ?, ?)
	`

	ts := now.Unix()
	return r.s.withWrite(func() error {
		return database.WithTransaction(r.s.db.Conn(), func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(query)
			if err != nil {
				return fmt.Errorf("failed to prepare equity insert: %w", err)
			}
			defer stmt.Close()

			for _, snap := range snaps {
				if _, err := stmt.Exec(snap.Address, snap.Equity, snap.Unrealized, ts); err != nil {
					return fmt.Errorf("failed to insert equity snapshot for %s: %w", snap.Address, err)
				}
			}
			return nil
		})
	})
}

// EquityGrowth24h ranks addresses by absolute equity change (last − first,
// USD) over the last 24 hours. Only addresses with at least two snapshots
// and a positive starting equity qualify. Returns at most topN rows,
// biggest gain first.
func (r *SnapshotRepo) EquityGrowth24h(topN int) ([]domain.EquityGrowth, error) {
	const query = `
		SELECT p.address,
			(SELECT equity FROM pnl_snapshots WHERE address = p.address AND created_at >= ? ORDER BY created_at ASC LIMIT 1),
			(SELECT equity FROM pnl_snapshots WHERE address = p.address AND created_at >= ? ORDER BY created_at DESC LIMIT 1),
			COUNT(*)
		FROM pnl_snapshots p
		WHERE p.created_at >= ?
		GROUP BY p.address
		HAVING COUNT(*) >= 2
	`

	cutoff := time.Now().Add(-24 * time.Hour).Unix()
	rows, err := r.s.db.Query(query, cutoff, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity growth: %w", err)
	}
	defer rows.Close()

	var growth []domain.EquityGrowth
	for rows.Next() {
		var g domain.EquityGrowth
		if err := rows.Scan(&g.Address, &g.FirstEquity, &g.LastEquity, &g.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to scan equity growth: %w", err)
		}
		if g.FirstEquity <= 0 {
			continue
		}
		g.PnL24h = g.LastEquity - g.FirstEquity
		g.GrowthPct = g.PnL24h / g.FirstEquity * 100
		growth = append(growth, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity growth: %w", err)
	}

	sort.Slice(growth, func(i, j int) bool {
		return growth[i].PnL24h > growth[j].PnL24h
	})
	if topN > 0 && len(growth) > topN {
		growth = growth[:topN]
	}

	return growth, nil
}

// InsertHLPBatch records the vault position set at now.
func (r *SnapshotRepo) InsertHLPBatch(snaps []domain.HLPSnapshot, now time.Time) error {
	if len(snaps) == 0 {
		return nil
	}

	const query = `
		INSERT OR REPLACE INTO hlp_snapshots (vault, coin, side, size_usd, entry_px, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	ts := now.Unix()
	return r.s.withWrite(func() error {
		return database.WithTransaction(r.s.db.Conn(), func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(query)
			if err != nil {
				return fmt.Errorf("failed to prepare vault snapshot insert: %w", err)
			}
			defer stmt.Close()

			for _, snap := range snaps {
				if _, err := stmt.Exec(snap.Vault, snap.Coin, snap.Side, snap.SizeUSD, snap.EntryPx, ts); err != nil {
					return fmt.Errorf("failed to insert vault snapshot %s/%s: %w", snap.Vault, snap.Coin, err)
				}
			}
			return nil
		})
	})
}

// HLPSince returns vault snapshots from the last `hours` hours for the
// given vaults, grouped by coin in chronological order so flip counting
// can run in one pass.
func (r *SnapshotRepo) HLPSince(vaults []string, hours int) ([]domain.HLPSnapshot, error) {
	if len(vaults) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(vaults))
	placeholders = placeholders[:len(placeholders)-1]
	query := `
		SELECT vault, coin, side, size_usd, entry_px, created_at
		FROM hlp_snapshots
		WHERE vault IN (` + placeholders + `) AND created_at >= ?
		ORDER BY coin ASC, created_at ASC
	`

	args := make([]interface{}, 0, len(vaults)+1)
	for _, v := range vaults {
		args = append(args, v)
	}
	args = append(args, time.Now().Add(-time.Duration(hours)*time.Hour).Unix())

	rows, err := r.s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.HLPSnapshot
	for rows.Next() {
		var snap domain.HLPSnapshot
		var createdAt int64
		if err := rows.Scan(&snap.Vault, &snap.Coin, &snap.Side, &snap.SizeUSD, &snap.EntryPx, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan vault snapshot: %w", err)
		}
		snap.CreatedAt = time.Unix(createdAt, 0)
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vault snapshots: %w", err)
	}

	return snaps, nil
}
