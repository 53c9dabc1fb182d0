package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/store"
)

// staleCutoff is how long a position row may go unrefreshed before the
// prune job treats its account as gone.
const staleCutoff = 24 * time.Hour

// PruneJob enforces the retention windows: time-series rows by age and
// position rows that the poller has stopped refreshing.
type PruneJob struct {
	st          *store.Store
	seriesDays  int
	featureDays int
	log         zerolog.Logger
}

func NewPruneJob(st *store.Store, seriesDays, featureDays int, log zerolog.Logger) *PruneJob {
	return &PruneJob{
		st:          st,
		seriesDays:  seriesDays,
		featureDays: featureDays,
		log:         log.With().Str("job", "prune").Logger(),
	}
}

func (j *PruneJob) Name() string { return "prune" }

func (j *PruneJob) Run() error {
	deleted, err := j.st.PruneOldData(j.seriesDays, j.featureDays)
	if err != nil {
		return err
	}

	stale, err := j.st.Positions.PruneOlderThan(time.Now().Add(-staleCutoff))
	if err != nil {
		return err
	}

	var total int64
	for _, n := range deleted {
		total += n
	}
	j.log.Info().
		Int64("series_rows", total).
		Int64("stale_positions", stale).
		Msg("Retention prune complete")
	return nil
}

// CheckpointJob truncates the WAL so it cannot grow without bound under
// the constant write load.
type CheckpointJob struct {
	st  *store.Store
	log zerolog.Logger
}

func NewCheckpointJob(st *store.Store, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{st: st, log: log.With().Str("job", "wal_checkpoint").Logger()}
}

func (j *CheckpointJob) Name() string { return "wal_checkpoint" }

func (j *CheckpointJob) Run() error {
	if err := j.st.DB().WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}
	j.log.Info().Msg("WAL checkpoint complete")
	return nil
}

// curator is the slice of the smart-money engine the job needs.
type curator interface {
	Curate() error
}

// CurateJob promotes top-ranked wallets into the watchlist.
type CurateJob struct {
	engine curator
}

func NewCurateJob(engine curator) *CurateJob {
	return &CurateJob{engine: engine}
}

func (j *CurateJob) Name() string { return "auto_curate" }

func (j *CurateJob) Run() error { return j.engine.Curate() }
