package store

import (
	"database/sql"
	"fmt"

	"github.com/hynous/hynous-data/internal/database"
	"github.com/hynous/hynous-data/internal/domain"
)

// FeatureRepo stores reconstructed feature rows written by the backfill.
type FeatureRepo struct {
	s *Store
}

// InsertBatch writes one batch of feature rows. Rows for an already
// covered (run, coin, minute) are replaced so re-runs stay idempotent.
func (r *FeatureRepo) InsertBatch(rows []domain.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	const query = `
		INSERT OR REPLACE INTO feature_snapshots
		(run_id, coin, bucketed_at, rsi_14, ema_20, atr_14, ret_mean, ret_std, buy_ratio, vol_usd, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.s.withWrite(func() error {
		return database.WithTransaction(r.s.db.Conn(), func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(query)
			if err != nil {
				return fmt.Errorf("failed to prepare feature insert: %w", err)
			}
			defer stmt.Close()

			for _, row := range rows {
				_, err := stmt.Exec(
					row.RunID, row.Coin, row.BucketedAt.Unix(),
					row.RSI14, row.EMA20, row.ATR14,
					row.RetMean, row.RetStd, row.BuyRatio,
					row.VolUSD, row.TradeCount,
				)
				if err != nil {
					return fmt.Errorf("failed to insert feature row %s@%d: %w", row.Coin, row.BucketedAt.Unix(), err)
				}
			}
			return nil
		})
	})
}

// CountByRun returns how many feature rows a run produced.
func (r *FeatureRepo) CountByRun(runID string) (int64, error) {
	var count int64
	err := r.s.db.QueryRow("SELECT COUNT(*) FROM feature_snapshots WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feature rows: %w", err)
	}
	return count, nil
}
