// Package tracker detects position transitions for watched wallets by
// diffing each poll's positions against the previous in-memory snapshot.
package tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/store"
)

// increaseFactor is the growth that turns a same-side size change into an
// "increase" event.
const increaseFactor = 1.2

// posSnap is the remembered slice of one position.
type posSnap struct {
	Side    string
	SizeUSD float64
	MarkPx  float64
}

// Tracker holds the last-seen position map per watched address.
type Tracker struct {
	st  *store.Store
	log zerolog.Logger

	mu        sync.Mutex
	snapshots map[string]map[string]posSnap
	watched   map[string]bool

	eventsEmitted atomic.Int64
}

// New creates an empty tracker. Call Preload before the first poll so
// existing positions do not masquerade as fresh entries.
func New(st *store.Store, log zerolog.Logger) *Tracker {
	return &Tracker{
		st:        st,
		log:       log.With().Str("component", "change_tracker").Logger(),
		snapshots: make(map[string]map[string]posSnap),
		watched:   make(map[string]bool),
	}
}

// Preload seeds the snapshot map from the positions table joined against
// the active watchlist. Watched addresses with no open positions get an
// empty map so their first poll cannot emit phantom entries.
func (t *Tracker) Preload() error {
	active, err := t.st.Watchlist.ActiveAddresses()
	if err != nil {
		return err
	}

	positions, err := t.st.Positions.ByAddresses(active)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.watched = make(map[string]bool, len(active))
	t.snapshots = make(map[string]map[string]posSnap, len(active))
	for _, addr := range active {
		t.watched[addr] = true
		snap := make(map[string]posSnap)
		for _, p := range positions[addr] {
			snap[p.Coin] = posSnap{Side: p.Side, SizeUSD: p.SizeUSD, MarkPx: p.MarkPx}
		}
		t.snapshots[addr] = snap
	}

	t.log.Info().Int("watched", len(active)).Msg("Change tracker preloaded")
	return nil
}

// SetWatched updates the watched set without disturbing snapshots, so
// watchlist edits take effect before the next Preload.
func (t *Tracker) SetWatched(address string, watched bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if watched {
		t.watched[address] = true
	} else {
		delete(t.watched, address)
	}
}

// Check diffs the address's current positions against its last snapshot
// and returns the detected changes. The first sight of an address seeds
// state and emits nothing. Unwatched addresses are ignored entirely.
func (t *Tracker) Check(address string, positions []domain.Position) []domain.ChangeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.watched[address] {
		return nil
	}

	current := make(map[string]posSnap, len(positions))
	for _, p := range positions {
		current[p.Coin] = posSnap{Side: p.Side, SizeUSD: p.SizeUSD, MarkPx: p.MarkPx}
	}

	prev, seen := t.snapshots[address]
	t.snapshots[address] = current
	if !seen {
		return nil
	}

	now := time.Now()
	var events []domain.ChangeEvent

	for coin, cur := range current {
		old, existed := prev[coin]
		switch {
		case !existed:
			events = append(events, changeEvent(address, coin, domain.ChangeEntry, cur.Side, 0, cur, now))
		case old.Side != cur.Side:
			events = append(events, changeEvent(address, coin, domain.ChangeFlip, cur.Side, old.SizeUSD, cur, now))
		case cur.SizeUSD > increaseFactor*old.SizeUSD:
			events = append(events, changeEvent(address, coin, domain.ChangeIncrease, cur.Side, old.SizeUSD, cur, now))
		}
	}

	for coin, old := range prev {
		if _, stillOpen := current[coin]; !stillOpen {
			events = append(events, domain.ChangeEvent{
				Address:     address,
				Coin:        coin,
				EventType:   domain.ChangeExit,
				Side:        old.Side,
				PrevSizeUSD: old.SizeUSD,
				MarkPx:      old.MarkPx,
				CreatedAt:   now,
			})
		}
	}

	return events
}

// CheckAndRecord diffs and persists any detected changes. The insert runs
// outside the tracker's lock; failures are logged and dropped.
func (t *Tracker) CheckAndRecord(address string, positions []domain.Position) {
	events := t.Check(address, positions)
	if len(events) == 0 {
		return
	}

	if err := t.st.Changes.InsertBatch(events); err != nil {
		t.log.Error().Err(err).Str("address", address).Int("events", len(events)).
			Msg("Failed to record position changes")
		return
	}

	t.eventsEmitted.Add(int64(len(events)))
	for _, ev := range events {
		t.log.Info().
			Str("address", ev.Address).
			Str("coin", ev.Coin).
			Str("event", ev.EventType).
			Float64("size_usd", ev.NewSizeUSD).
			Msg("Watched wallet position change")
	}
}

// Stats returns tracker counters.
func (t *Tracker) Stats() map[string]interface{} {
	t.mu.Lock()
	watched := len(t.watched)
	tracked := len(t.snapshots)
	t.mu.Unlock()

	return map[string]interface{}{
		"watched_addresses": watched,
		"tracked_snapshots": tracked,
		"events_emitted":    t.eventsEmitted.Load(),
	}
}

func changeEvent(address, coin, eventType, side string, prevSizeUSD float64, cur posSnap, now time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		Address:     address,
		Coin:        coin,
		EventType:   eventType,
		Side:        side,
		PrevSizeUSD: prevSizeUSD,
		NewSizeUSD:  cur.SizeUSD,
		MarkPx:      cur.MarkPx,
		CreatedAt:   now,
	}
}
