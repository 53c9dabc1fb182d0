package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hynous/hynous-data/internal/database"
	"github.com/hynous/hynous-data/internal/domain"
)

// ChangeRepo records position transitions of watched wallets.
type ChangeRepo struct {
	s *Store
}

// InsertBatch writes one batch of change events.
func (r *ChangeRepo) InsertBatch(events []domain.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO position_changes
		(address, coin, event_type, side, prev_size_usd, new_size_usd, mark_px, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.s.withWrite(func() error {
		return database.WithTransaction(r.s.db.Conn(), func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(query)
			if err != nil {
				return fmt.Errorf("failed to prepare change insert: %w", err)
			}
			defer stmt.Close()

			for _, ev := range events {
				_, err := stmt.Exec(
					ev.Address, ev.Coin, ev.EventType, ev.Side,
					ev.PrevSizeUSD, ev.NewSizeUSD, ev.MarkPx, ev.CreatedAt.Unix(),
				)
				if err != nil {
					return fmt.Errorf("failed to insert change event %s/%s: %w", ev.Address, ev.Coin, err)
				}
			}
			return nil
		})
	})
}

// Since returns change events from the last `minutes` minutes, newest
// first.
func (r *ChangeRepo) Since(minutes int) ([]domain.ChangeEvent, error) {
	const query = `
		SELECT address, coin, event_type, side, prev_size_usd, new_size_usd, mark_px, created_at
		FROM position_changes
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute).Unix()
	rows, err := r.s.db.Query(query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query change events: %w", err)
	}
	defer rows.Close()

	var events []domain.ChangeEvent
	for rows.Next() {
		var ev domain.ChangeEvent
		var createdAt int64
		err := rows.Scan(
			&ev.Address, &ev.Coin, &ev.EventType, &ev.Side,
			&ev.PrevSizeUSD, &ev.NewSizeUSD, &ev.MarkPx, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		ev.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change events: %w", err)
	}

	return events, nil
}
