package whales

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/domain"
	testhelpers "github.com/hynous/hynous-data/internal/testing"
)

func testAddr(suffix string) string {
	return "0x" + strings.Repeat("0", 40-len(suffix)) + suffix
}

func TestTopRanksBySizeWithTotals(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	require.NoError(t, st.Positions.ReplaceBatch([]domain.Position{
		testhelpers.NewPosition(testAddr("a1"), "BTC", 500000),
		testhelpers.NewPosition(testAddr("a2"), "BTC", 2000000),
		testhelpers.NewShortPosition(testAddr("a3"), "BTC", 800000),
		testhelpers.NewPosition(testAddr("a4"), "ETH", 9000000),
	}))

	tr := New(st)
	report, err := tr.Top("BTC", 2)
	require.NoError(t, err)

	require.Len(t, report.Positions, 2)
	assert.Equal(t, 2000000.0, report.Positions[0].SizeUSD)
	assert.Equal(t, 800000.0, report.Positions[1].SizeUSD)

	assert.Equal(t, 2500000.0, report.TotalLongUSD)
	assert.Equal(t, 800000.0, report.TotalShortUSD)
	assert.Equal(t, 1700000.0, report.NetUSD)
	assert.Equal(t, 3, report.PositionCount)
	assert.False(t, report.OldestUpdate.IsZero())
}

func TestTopClampsRequestedCount(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	require.NoError(t, st.Positions.ReplaceBatch([]domain.Position{
		testhelpers.NewPosition(testAddr("b1"), "BTC", 100000),
		testhelpers.NewPosition(testAddr("b2"), "BTC", 200000),
	}))

	tr := New(st)

	report, err := tr.Top("BTC", 0)
	require.NoError(t, err)
	assert.Len(t, report.Positions, 1, "top below 1 clamps to 1")

	report, err = tr.Top("BTC", 10000)
	require.NoError(t, err)
	assert.Len(t, report.Positions, 2, "top above 500 clamps but still returns all rows")
}

func TestTopUnknownCoinEmptyReport(t *testing.T) {
	st, cleanup := testhelpers.NewTestStore(t)
	defer cleanup()

	tr := New(st)
	report, err := tr.Top("DOGE", 10)
	require.NoError(t, err)

	assert.Empty(t, report.Positions)
	assert.Zero(t, report.TotalLongUSD)
	assert.Zero(t, report.NetUSD)
	assert.Zero(t, report.PositionCount)
	assert.True(t, report.OldestUpdate.IsZero())
}
