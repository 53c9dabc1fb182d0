package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hynous/hynous-data/internal/domain"
)

// ProfileRepo manages computed wallet profiles.
type ProfileRepo struct {
	s *Store
}

const profileColumns = `address, trade_count, win_rate, avg_hold_hours, avg_pnl_pct, profit_factor, max_drawdown_pct, trades_per_day, is_bot, style, updated_at`

// Upsert writes or replaces one profile.
func (r *ProfileRepo) Upsert(p domain.Profile) error {
	const query = `
		INSERT OR REPLACE INTO wallet_profiles
		(` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	isBot := 0
	if p.IsBot {
		isBot = 1
	}

	return r.s.withWrite(func() error {
		_, err := r.s.db.Exec(query,
			p.Address, p.TradeCount, p.WinRate, p.AvgHoldHours, p.AvgPnLPct,
			p.ProfitFactor, p.MaxDrawdownPct, p.TradesPerDay, isBot, p.Style,
			p.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert profile for %s: %w", p.Address, err)
		}
		return nil
	})
}

// Get returns one profile, or nil when the address has none.
func (r *ProfileRepo) Get(address string) (*domain.Profile, error) {
	query := "SELECT " + profileColumns + " FROM wallet_profiles WHERE address = ?"

	row := r.s.db.QueryRow(query, address)
	p, err := scanProfileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

// ByAddresses returns profiles keyed by address.
func (r *ProfileRepo) ByAddresses(addrs []string) (map[string]domain.Profile, error) {
	result := make(map[string]domain.Profile)
	if len(addrs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(addrs))
	placeholders = placeholders[:len(placeholders)-1]
	query := "SELECT " + profileColumns + " FROM wallet_profiles WHERE address IN (" + placeholders + ")"

	args := make([]interface{}, len(addrs))
	for i, a := range addrs {
		args[i] = a
	}

	rows, err := r.s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		result[p.Address] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return result, nil
}

// ProfiledSet returns the set of addresses that already have a profile.
func (r *ProfileRepo) ProfiledSet() (map[string]bool, error) {
	rows, err := r.s.db.Query("SELECT address FROM wallet_profiles")
	if err != nil {
		return nil, fmt.Errorf("failed to query profiled set: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan profiled address: %w", err)
		}
		set[addr] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiled set: %w", err)
	}

	return set, nil
}

// StaleAddresses returns up to limit profiled addresses whose profile is
// older than the cutoff, oldest first. Feeds the periodic refresh.
func (r *ProfileRepo) StaleAddresses(cutoff time.Time, limit int) ([]string, error) {
	const query = `
		SELECT address FROM wallet_profiles
		WHERE updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.s.db.Query(query, cutoff.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale profiles: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan stale profile address: %w", err)
		}
		addrs = append(addrs, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale profiles: %w", err)
	}

	return addrs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfileFrom(scanner rowScanner) (domain.Profile, error) {
	var p domain.Profile
	var isBot int
	var updatedAt int64

	err := scanner.Scan(
		&p.Address, &p.TradeCount, &p.WinRate, &p.AvgHoldHours, &p.AvgPnLPct,
		&p.ProfitFactor, &p.MaxDrawdownPct, &p.TradesPerDay, &isBot, &p.Style,
		&updatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}

	p.IsBot = isBot != 0
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return p, nil
}

func scanProfile(rows *sql.Rows) (domain.Profile, error) {
	return scanProfileFrom(rows)
}

func scanProfileRow(row *sql.Row) (domain.Profile, error) {
	return scanProfileFrom(row)
}
