package backfill

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/store"
	"github.com/hynous/hynous-data/internal/utils"
)

// insertBatchSize bounds one feature write so the store's write lock is
// never held across a whole run.
const insertBatchSize = 500

// Summary reports what one backfill run produced.
type Summary struct {
	RunID    string
	Coins    int
	Objects  int
	Trades   int
	Rows     int
	Duration time.Duration
}

// Runner drives one backfill: archive in, feature rows out.
type Runner struct {
	archive *Archive
	st      *store.Store
	log     zerolog.Logger
}

func NewRunner(archive *Archive, st *store.Store, log zerolog.Logger) *Runner {
	return &Runner{
		archive: archive,
		st:      st,
		log:     log.With().Str("component", "backfill").Logger(),
	}
}

// Run reconstructs features for every coin over [from, to] (whole days,
// inclusive). When outPath is non-empty the rows are also streamed to it
// msgpack-encoded, one record per row.
func (r *Runner) Run(ctx context.Context, coins []string, from, to time.Time, outPath string) (*Summary, error) {
	defer utils.OperationTimer("backfill_run", r.log)()

	started := time.Now()
	summary := &Summary{RunID: uuid.NewString(), Coins: len(coins)}

	var out *msgpack.Encoder
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = msgpack.NewEncoder(f)
	}

	for _, coin := range coins {
		rows, err := r.runCoin(ctx, summary, coin, from, to)
		if err != nil {
			return nil, fmt.Errorf("backfill %s: %w", coin, err)
		}

		if err := r.persist(rows); err != nil {
			return nil, fmt.Errorf("persist %s: %w", coin, err)
		}
		if out != nil {
			for i := range rows {
				if err := out.Encode(&rows[i]); err != nil {
					return nil, fmt.Errorf("encode %s: %w", coin, err)
				}
			}
		}

		summary.Rows += len(rows)
		r.log.Info().
			Str("coin", coin).
			Int("rows", len(rows)).
			Msg("Coin backfilled")
	}

	summary.Duration = time.Since(started)
	return summary, nil
}

func (r *Runner) runCoin(ctx context.Context, summary *Summary, coin string, from, to time.Time) ([]domain.FeatureRow, error) {
	var trades []ArchiveTrade
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		keys, err := r.archive.ListHours(ctx, coin, day)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			hour, err := r.archive.FetchHour(ctx, key)
			if err != nil {
				return nil, err
			}
			summary.Objects++
			trades = append(trades, hour...)
		}
	}
	summary.Trades += len(trades)

	bars := MinuteBars(trades)
	return ComputeFeatures(summary.RunID, coin, bars), nil
}

func (r *Runner) persist(rows []domain.FeatureRow) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.st.Features.InsertBatch(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}
