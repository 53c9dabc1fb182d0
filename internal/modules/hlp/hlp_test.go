package hlp

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/ratelimit"
	testhelpers "github.com/hynous/hynous-data/internal/testing"
)

const testVault = "0xdfc24b077bc1425ad1dea75bcb6f8158e10df303"

func TestPollRefreshesCurrentAndPersists(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	mock := &testhelpers.MockExchange{}
	mock.SetState(testVault, &domain.AccountState{
		Address: testVault,
		Equity:  50000000,
		Positions: []domain.Position{
			testhelpers.NewShortPosition(testVault, "BTC", 3000000),
			testhelpers.NewPosition(testVault, "ETH", 1000000),
		},
	})

	tr := New(st, ratelimit.New(1200, 100), mock, []string{testVault}, time.Minute, zerolog.Nop())
	tr.poll()

	current := tr.Positions()
	require.Len(t, current, 2)
	assert.Equal(t, testVault, current[0].Vault)

	stored, err := st.Snapshots.HLPSince([]string{testVault}, 1)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSentimentCountsFlips(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	now := time.Now()
	seed := func(side string, sizeUSD float64, at time.Time) domain.HLPSnapshot {
		return domain.HLPSnapshot{
			Vault: testVault, Coin: "BTC", Side: side,
			SizeUSD: sizeUSD, EntryPx: 100000, CreatedAt: at,
		}
	}
	// short -> long -> long -> short: two flips, ends short.
	require.NoError(t, st.Snapshots.InsertHLPBatch([]domain.HLPSnapshot{seed(domain.SideShort, 100, now)}, now.Add(-3*time.Hour)))
	require.NoError(t, st.Snapshots.InsertHLPBatch([]domain.HLPSnapshot{seed(domain.SideLong, 200, now)}, now.Add(-2*time.Hour)))
	require.NoError(t, st.Snapshots.InsertHLPBatch([]domain.HLPSnapshot{seed(domain.SideLong, 250, now)}, now.Add(-90*time.Minute)))
	require.NoError(t, st.Snapshots.InsertHLPBatch([]domain.HLPSnapshot{seed(domain.SideShort, 400, now)}, now.Add(-time.Hour)))

	mock := &testhelpers.MockExchange{}
	tr := New(st, ratelimit.New(1200, 100), mock, []string{testVault}, time.Minute, zerolog.Nop())

	sentiment, err := tr.Sentiment(24)
	require.NoError(t, err)
	require.Len(t, sentiment, 1)

	btc := sentiment[0]
	assert.Equal(t, "BTC", btc.Coin)
	assert.Equal(t, 2, btc.Flips)
	assert.Equal(t, domain.SideShort, btc.CurrentSide)
	assert.Equal(t, 400.0, btc.CurrentSizeUSD)
	assert.Equal(t, 4, btc.Snapshots)
}

func TestSentimentClampsHours(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	tr := New(st, ratelimit.New(1200, 100), &testhelpers.MockExchange{}, []string{testVault}, time.Minute, zerolog.Nop())

	// Out-of-range hours must not error, just clamp.
	_, err := tr.Sentiment(0)
	require.NoError(t, err)
	_, err = tr.Sentiment(10000)
	require.NoError(t, err)
}

func TestPollSkipsWithoutBudget(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	mock := &testhelpers.MockExchange{}
	tr := New(st, ratelimit.New(1200, 0), mock, []string{testVault}, time.Minute, zerolog.Nop())
	tr.poll()

	_, _, states, _ := mock.Calls()
	assert.Zero(t, states)
	assert.Equal(t, int64(1), tr.Stats()["budget_skips"])
}

func TestPollFetchErrorKeepsGoing(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	mock := &testhelpers.MockExchange{}
	mock.SetError(errors.New("upstream down"))

	tr := New(st, ratelimit.New(1200, 100), mock, []string{testVault}, time.Minute, zerolog.Nop())
	tr.poll()

	assert.Empty(t, tr.Positions())
	assert.Equal(t, int64(1), tr.Stats()["fetch_errors"])
	assert.Equal(t, int64(1), tr.Stats()["polls"])
}

func TestPollAllVaultsFailingRetainsPositions(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	mock := &testhelpers.MockExchange{}
	mock.SetState(testVault, &domain.AccountState{
		Address: testVault,
		Equity:  50000000,
		Positions: []domain.Position{
			testhelpers.NewShortPosition(testVault, "BTC", 3000000),
		},
	})

	tr := New(st, ratelimit.New(1200, 100), mock, []string{testVault}, time.Minute, zerolog.Nop())
	tr.poll()
	require.Len(t, tr.Positions(), 1)

	// A round of total fetch failure must not wipe the last known set.
	mock.SetError(errors.New("upstream down"))
	tr.poll()

	current := tr.Positions()
	require.Len(t, current, 1)
	assert.Equal(t, "BTC", current[0].Coin)
	assert.Equal(t, int64(1), tr.Stats()["fetch_errors"])
}
