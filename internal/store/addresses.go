package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hynous/hynous-data/internal/database"
	"github.com/hynous/hynous-data/internal/domain"
)

// AddressRepo manages the registry of addresses discovered on the trade
// feed and their polling metadata.
type AddressRepo struct {
	s *Store
}

// TierIntervals holds the per-tier staleness intervals for poll selection.
type TierIntervals struct {
	Tier1 time.Duration
	Tier2 time.Duration
	Tier3 time.Duration
}

// UpsertDiscovered applies one batch of pending discoveries. Existing rows
// keep first_seen, advance last_seen monotonically, and add the batch's
// trade counts. Returns the number of addresses inserted for the first
// time, computed as the COUNT(*) delta inside the same critical section
// as the writes.
func (r *AddressRepo) UpsertDiscovered(batch []domain.DiscoveredAddress) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	const upsert = `
		INSERT INTO addresses (address, first_seen, last_seen, trade_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			last_seen = MAX(last_seen, excluded.last_seen),
			trade_count = trade_count + excluded.trade_count
	`

	var inserted int
	err := r.s.withWrite(func() error {
		var before, after int64
		if err := r.s.db.QueryRow("SELECT COUNT(*) FROM addresses").Scan(&before); err != nil {
			return fmt.Errorf("failed to count addresses before flush: %w", err)
		}

		err := database.WithTransaction(r.s.db.Conn(), func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(upsert)
			if err != nil {
				return fmt.Errorf("failed to prepare address upsert: %w", err)
			}
			defer stmt.Close()

			for _, d := range batch {
				if _, err := stmt.Exec(d.Address, d.FirstSeen.Unix(), d.LastSeen.Unix(), d.TradeCount); err != nil {
					return fmt.Errorf("failed to upsert address %s: %w", d.Address, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if err := r.s.db.QueryRow("SELECT COUNT(*) FROM addresses").Scan(&after); err != nil {
			return fmt.Errorf("failed to count addresses after flush: %w", err)
		}
		inserted = int(after - before)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// SelectPollable returns up to limit addresses due for a poll: seen within
// the last 7 days and stale per their tier's interval. Lower tiers come
// first, least-recently-polled first within a tier.
func (r *AddressRepo) SelectPollable(limit int, intervals TierIntervals, now time.Time) ([]string, error) {
	const query = `
		SELECT address FROM addresses
		WHERE last_seen >= ?
		  AND (
			(tier = 1 AND last_polled <= ?) OR
			(tier = 2 AND last_polled <= ?) OR
			(tier = 3 AND last_polled <= ?)
		  )
		ORDER BY tier ASC, last_polled ASC
		LIMIT ?
	`

	seenCutoff := now.AddDate(0, 0, -7).Unix()
	rows, err := r.s.db.Query(query,
		seenCutoff,
		now.Add(-intervals.Tier1).Unix(),
		now.Add(-intervals.Tier2).Unix(),
		now.Add(-intervals.Tier3).Unix(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select pollable addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addrs = append(addrs, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pollable addresses: %w", err)
	}

	return addrs, nil
}

// MarkPolled records a completed poll and reclassifies the address tier
// from its total position size.
func (r *AddressRepo) MarkPolled(address string, totalSizeUSD, whaleThreshold, midThreshold float64, now time.Time) error {
	const query = `
		UPDATE addresses SET
			last_polled = ?,
			total_size_usd = ?,
			tier = CASE
				WHEN ? >= ? THEN 1
				WHEN ? >= ? THEN 2
				ELSE 3
			END
		WHERE address = ?
	`

	return r.s.withWrite(func() error {
		_, err := r.s.db.Exec(query,
			now.Unix(),
			totalSizeUSD,
			totalSizeUSD, whaleThreshold,
			totalSizeUSD, midThreshold,
			address,
		)
		if err != nil {
			return fmt.Errorf("failed to mark %s polled: %w", address, err)
		}
		return nil
	})
}

// Count returns the total number of registered addresses.
func (r *AddressRepo) Count() (int64, error) {
	var count int64
	if err := r.s.db.QueryRow("SELECT COUNT(*) FROM addresses").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count addresses: %w", err)
	}
	return count, nil
}

// Get returns one registry row, or nil when the address is unknown.
func (r *AddressRepo) Get(address string) (*AddressRow, error) {
	const query = `
		SELECT address, first_seen, last_seen, trade_count, tier, last_polled, total_size_usd
		FROM addresses WHERE address = ?
	`

	var row AddressRow
	var firstSeen, lastSeen, lastPolled int64
	err := r.s.db.QueryRow(query, strings.ToLower(address)).Scan(
		&row.Address, &firstSeen, &lastSeen, &row.TradeCount,
		&row.Tier, &lastPolled, &row.TotalSizeUSD,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	row.FirstSeen = time.Unix(firstSeen, 0)
	row.LastSeen = time.Unix(lastSeen, 0)
	row.LastPolled = time.Unix(lastPolled, 0)
	return &row, nil
}

// AddressRow is one registry entry.
type AddressRow struct {
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastPolled   time.Time `json:"last_polled"`
	Address      string    `json:"address"`
	TradeCount   int64     `json:"trade_count"`
	Tier         int       `json:"tier"`
	TotalSizeUSD float64   `json:"total_size_usd"`
}
