package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/domain"
	testhelpers "github.com/hynous/hynous-data/internal/testing"
)

func testAddr(suffix string) string {
	return "0x" + strings.Repeat("0", 40-len(suffix)) + suffix
}

func TestPruneJobRemovesExpiredRows(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	addr := testAddr("a1")

	// An old equity snapshot beyond the 7-day series retention and a fresh
	// one inside it.
	require.NoError(t, st.Snapshots.InsertEquityBatch(
		[]domain.EquitySnapshot{{Address: addr, Equity: 1000}}, time.Now().AddDate(0, 0, -10)))
	require.NoError(t, st.Snapshots.InsertEquityBatch(
		[]domain.EquitySnapshot{{Address: addr, Equity: 2000}}, time.Now()))

	// A position the poller refreshed recently survives the stale sweep.
	require.NoError(t, st.Positions.ReplaceBatch([]domain.Position{
		testhelpers.NewPosition(addr, "BTC", 100000),
	}))

	job := NewPruneJob(st, 7, 30, zerolog.Nop())
	require.NoError(t, job.Run())

	count, err := st.Positions.CountAll()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCheckpointJobRuns(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	job := NewCheckpointJob(st, zerolog.Nop())
	assert.Equal(t, "wal_checkpoint", job.Name())
	require.NoError(t, job.Run())
}

type fakeCurator struct{ calls int }

func (f *fakeCurator) Curate() error {
	f.calls++
	return nil
}

func TestCurateJobDelegates(t *testing.T) {
	fake := &fakeCurator{}
	job := NewCurateJob(fake)
	require.NoError(t, job.Run())
	assert.Equal(t, 1, fake.calls)
}

type countingJob struct{ runs chan struct{} }

func (c *countingJob) Name() string { return "counting" }
func (c *countingJob) Run() error {
	select {
	case c.runs <- struct{}{}:
	default:
	}
	return nil
}

func TestSchedulerRunsRegisteredJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{runs: make(chan struct{}, 1)}
	require.NoError(t, s.AddJob("@every 10ms", job))

	s.Start()
	defer s.Stop()

	select {
	case <-job.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job never ran")
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{runs: make(chan struct{}, 1)})
	assert.Error(t, err)
}
