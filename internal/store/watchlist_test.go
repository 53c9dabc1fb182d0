package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hynous/hynous-data/internal/domain"
	testingpkg "github.com/hynous/hynous-data/internal/testing"
)

func TestWatchlist_WatchUnwatchRewatch(t *testing.T) {
	s, cleanup := testingpkg.NewTestStore(t)
	defer cleanup()

	require.NoError(t, s.Watchlist.Watch(addrA, "whale", "", ""))

	entry, err := s.Watchlist.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "whale", entry.Label)
	assert.True(t, entry.Active)

	// Unwatch deactivates but keeps the row.
	require.NoError(t, s.Watchlist.Unwatch(addrA))
	entry, err = s.Watchlist.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.Active)

	active, err := s.Watchlist.ActiveAddresses()
	require.NoError(t, err)
	assert.Empty(t, active)

	// Re-watching reactivates and relabels.
	require.NoError(t, s.Watchlist.Watch(addrA, "smart money", "", ""))
	entry, err = s.Watchlist.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Active)
	assert.Equal(t, "smart money", entry.Label)
}

func TestWatchlist_NotesAndTagsRoundTrip(t *testing.T) {
	s, cleanup := testingpkg.NewTestStore(t)
	defer cleanup()

	require.NoError(t, s.Watchlist.Watch(addrA, "whale", "funded via bridge in may", "whale,momentum"))

	entry, err := s.Watchlist.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "funded via bridge in may", entry.Notes)
	assert.Equal(t, "whale,momentum", entry.Tags)

	// Re-watching overwrites the annotations along with the label.
	require.NoError(t, s.Watchlist.Watch(addrA, "whale", "gone quiet", ""))
	entry, err = s.Watchlist.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "gone quiet", entry.Notes)
	assert.Empty(t, entry.Tags)

	wallets, err := s.Watchlist.List()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "gone quiet", wallets[0].Notes)
}

func TestWatchlist_GetUnknownReturnsNil(t *testing.T) {
	s, cleanup := testingpkg.NewTestStore(t)
	defer cleanup()

	entry, err := s.Watchlist.Get(addrA)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestWatchlist_ListAndActiveAddresses(t *testing.T) {
	s, cleanup := testingpkg.NewTestStore(t)
	defer cleanup()

	require.NoError(t, s.Watchlist.Watch(addrA, "one", "", ""))
	require.NoError(t, s.Watchlist.Watch(addrB, "two", "", ""))
	require.NoError(t, s.Watchlist.Watch(addrC, "three", "", ""))
	require.NoError(t, s.Watchlist.Unwatch(addrB))

	wallets, err := s.Watchlist.List()
	require.NoError(t, err)
	require.Len(t, wallets, 3)
	// Active entries sort ahead of inactive ones.
	assert.True(t, wallets[0].Active)
	assert.True(t, wallets[1].Active)
	assert.False(t, wallets[2].Active)

	active, err := s.Watchlist.ActiveAddresses()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{addrA, addrC}, active)
}

func TestProfiles_UpsertGetProfiledSet(t *testing.T) {
	s, cleanup := testingpkg.NewTestStore(t)
	defer cleanup()

	profile := domain.Profile{
		Address:        addrA,
		TradeCount:     42,
		WinRate:        0.625,
		AvgHoldHours:   5.5,
		AvgPnLPct:      1.2,
		ProfitFactor:   2.4,
		MaxDrawdownPct: 12.5,
		TradesPerDay:   3.5,
		IsBot:          false,
		Style:          domain.StyleDayTrader,
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, s.Profiles.Upsert(profile))

	got, err := s.Profiles.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 42, got.TradeCount)
	assert.InDelta(t, 0.625, got.WinRate, 1e-9)
	assert.Equal(t, domain.StyleDayTrader, got.Style)
	assert.False(t, got.IsBot)

	// Upsert replaces.
	profile.IsBot = true
	profile.Style = domain.StyleScalper
	require.NoError(t, s.Profiles.Upsert(profile))

	got, err = s.Profiles.Get(addrA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsBot)
	assert.Equal(t, domain.StyleScalper, got.Style)

	set, err := s.Profiles.ProfiledSet()
	require.NoError(t, err)
	assert.True(t, set[addrA])
	assert.False(t, set[addrB])

	missing, err := s.Profiles.Get(addrB)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfiles_ByAddressesAndStale(t *testing.T) {
	s, cleanup := testingpkg.NewTestStore(t)
	defer cleanup()

	now := time.Now()
	require.NoError(t, s.Profiles.Upsert(domain.Profile{Address: addrA, Style: domain.StyleSwing, UpdatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Profiles.Upsert(domain.Profile{Address: addrB, Style: domain.StylePosition, UpdatedAt: now}))

	byAddr, err := s.Profiles.ByAddresses([]string{addrA, addrB, addrC})
	require.NoError(t, err)
	assert.Len(t, byAddr, 2)
	assert.Equal(t, domain.StyleSwing, byAddr[addrA].Style)

	stale, err := s.Profiles.StaleAddresses(now.Add(-6*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{addrA}, stale)
}
