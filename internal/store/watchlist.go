package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hynous/hynous-data/internal/domain"
)

// WatchlistRepo manages the curated set of wallets whose position
// transitions are recorded.
type WatchlistRepo struct {
	s *Store
}

// Watch adds the address or re-activates and re-annotates an existing
// entry. The address must already be normalised. Notes and tags may be
// empty.
func (r *WatchlistRepo) Watch(address, label, notes, tags string) error {
	const query = `
		INSERT INTO watchlist (address, label, notes, tags, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(address) DO UPDATE SET
			label = excluded.label, notes = excluded.notes, tags = excluded.tags, active = 1
	`

	return r.s.withWrite(func() error {
		if _, err := r.s.db.Exec(query, address, label, notes, tags, time.Now().Unix()); err != nil {
			return fmt.Errorf("failed to watch %s: %w", address, err)
		}
		return nil
	})
}

// Unwatch deactivates the entry. History and past change events are kept.
func (r *WatchlistRepo) Unwatch(address string) error {
	return r.s.withWrite(func() error {
		if _, err := r.s.db.Exec("UPDATE watchlist SET active = 0 WHERE address = ?", address); err != nil {
			return fmt.Errorf("failed to unwatch %s: %w", address, err)
		}
		return nil
	})
}

// Get returns one entry, or nil when the address is not on the list.
func (r *WatchlistRepo) Get(address string) (*domain.WatchedWallet, error) {
	const query = `SELECT address, label, notes, tags, active, created_at FROM watchlist WHERE address = ?`

	var w domain.WatchedWallet
	var active int
	var createdAt int64
	err := r.s.db.QueryRow(query, address).Scan(&w.Address, &w.Label, &w.Notes, &w.Tags, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist entry: %w", err)
	}

	w.Active = active != 0
	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}

// List returns every entry, active first, newest first within a group.
func (r *WatchlistRepo) List() ([]domain.WatchedWallet, error) {
	const query = `
		SELECT address, label, notes, tags, active, created_at FROM watchlist
		ORDER BY active DESC, created_at DESC
	`

	rows, err := r.s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	var wallets []domain.WatchedWallet
	for rows.Next() {
		var w domain.WatchedWallet
		var active int
		var createdAt int64
		if err := rows.Scan(&w.Address, &w.Label, &w.Notes, &w.Tags, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		w.Active = active != 0
		w.CreatedAt = time.Unix(createdAt, 0)
		wallets = append(wallets, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist: %w", err)
	}

	return wallets, nil
}

// ActiveAddresses returns the addresses of active entries.
func (r *WatchlistRepo) ActiveAddresses() ([]string, error) {
	rows, err := r.s.db.Query("SELECT address FROM watchlist WHERE active = 1")
	if err != nil {
		return nil, fmt.Errorf("failed to query active watchlist: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist address: %w", err)
		}
		addrs = append(addrs, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active watchlist: %w", err)
	}

	return addrs, nil
}
