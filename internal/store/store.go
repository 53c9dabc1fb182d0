// Package store provides the persistent market-data store shared by the
// collectors and derivation engines. A single process-wide write mutex
// serializes every mutating statement and its commit; readers go straight
// to the connection pool and never take it.
package store

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/database"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the database with the write lock and the repositories.
type Store struct {
	db      *database.DB
	log     zerolog.Logger
	writeMu sync.Mutex

	Addresses    *AddressRepo
	Positions    *PositionRepo
	Liquidations *LiquidationRepo
	Snapshots    *SnapshotRepo
	Changes      *ChangeRepo
	Watchlist    *WatchlistRepo
	Profiles     *ProfileRepo
	Features     *FeatureRepo
}

// Open opens (creating if necessary) the store at path.
// InitSchema must be called before first use.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
	}
	s.Addresses = &AddressRepo{s: s}
	s.Positions = &PositionRepo{s: s}
	s.Liquidations = &LiquidationRepo{s: s}
	s.Snapshots = &SnapshotRepo{s: s}
	s.Changes = &ChangeRepo{s: s}
	s.Watchlist = &WatchlistRepo{s: s}
	s.Profiles = &ProfileRepo{s: s}
	s.Features = &FeatureRepo{s: s}

	return s, nil
}

// InitSchema applies the embedded schema. Idempotent.
func (s *Store) InitSchema() error {
	return s.db.Migrate(schemaSQL)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the wrapped database for maintenance operations
// (WAL checkpoints, stats, health checks).
func (s *Store) DB() *database.DB {
	return s.db
}

// withWrite runs fn while holding the process-wide write lock. Every
// INSERT/UPDATE/DELETE and its commit goes through here.
func (s *Store) withWrite(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// PruneOldData deletes time-series rows older than the retention windows:
// seriesDays covers hlp_snapshots, pnl_snapshots, liquidations, and
// position_changes; featureDays covers feature_snapshots. Returns deleted
// row counts per table.
func (s *Store) PruneOldData(seriesDays, featureDays int) (map[string]int64, error) {
	seriesCutoff := time.Now().AddDate(0, 0, -seriesDays).Unix()
	featureCutoff := time.Now().AddDate(0, 0, -featureDays).Unix()

	targets := []struct {
		table  string
		column string
		cutoff int64
	}{
		{"hlp_snapshots", "created_at", seriesCutoff},
		{"pnl_snapshots", "created_at", seriesCutoff},
		{"liquidations", "created_at", seriesCutoff},
		{"position_changes", "created_at", seriesCutoff},
		{"feature_snapshots", "bucketed_at", featureCutoff},
	}

	deleted := make(map[string]int64, len(targets))
	err := s.withWrite(func() error {
		for _, target := range targets {
			query := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", target.table, target.column)
			result, err := s.db.Exec(query, target.cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune %s: %w", target.table, err)
			}
			count, _ := result.RowsAffected()
			deleted[target.table] = count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}
