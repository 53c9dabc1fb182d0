// Package buffers holds the in-memory per-instrument trade buffers shared
// by the trade stream and the derivation engines. Trades live only here:
// the registry is cleared on start and never persisted.
package buffers

import (
	"sort"
	"sync"

	"github.com/hynous/hynous-data/internal/domain"
)

// Buffer is a fixed-capacity ring of trades.
//
// Layout: head indexes the oldest element, (head+count-1)%maxSize the
// newest. While filling, head stays at 0; once full, head advances on
// each insert, evicting the oldest in O(1) with zero allocations.
//
// A Buffer has no lock of its own. All access runs under the registry's
// single mutex.
type Buffer struct {
	trades  []domain.Trade
	head    int
	count   int
	maxSize int
}

func newBuffer(capacity int) *Buffer {
	return &Buffer{
		trades:  make([]domain.Trade, capacity),
		maxSize: capacity,
	}
}

func (b *Buffer) append(t domain.Trade) {
	writeIdx := (b.head + b.count) % b.maxSize
	b.trades[writeIdx] = t
	if b.count < b.maxSize {
		b.count++
	} else {
		b.head = (b.head + 1) % b.maxSize
	}
}

// snapshot copies the contents in chronological order, oldest first.
func (b *Buffer) snapshot() []domain.Trade {
	if b.count == 0 {
		return nil
	}
	out := make([]domain.Trade, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.trades[(b.head+i)%b.maxSize]
	}
	return out
}

// Registry owns every per-instrument buffer. Producers append through it,
// readers get immutable copies; nothing else can reach the rings.
type Registry struct {
	mu       sync.RWMutex
	buffers  map[string]*Buffer
	capacity int
}

// NewRegistry creates an empty registry. Each instrument's buffer holds
// at most capacity trades.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		buffers:  make(map[string]*Buffer),
		capacity: capacity,
	}
}

// Append adds one trade to its instrument's buffer, creating the buffer
// on first sight.
func (r *Registry) Append(t domain.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[t.Coin]
	if !ok {
		buf = newBuffer(r.capacity)
		r.buffers[t.Coin] = buf
	}
	buf.append(t)
}

// Snapshot returns a chronological copy of the instrument's buffer, or
// nil when the instrument has no trades. Callers own the returned slice.
func (r *Registry) Snapshot(coin string) []domain.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buf, ok := r.buffers[coin]
	if !ok {
		return nil
	}
	return buf.snapshot()
}

// AllSnapshots returns chronological copies of every non-empty buffer.
func (r *Registry) AllSnapshots() map[string][]domain.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]domain.Trade, len(r.buffers))
	for coin, buf := range r.buffers {
		if snap := buf.snapshot(); snap != nil {
			out[coin] = snap
		}
	}
	return out
}

// Clear drops every buffer. Called on stream start so a restart never
// serves stale trades.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers = make(map[string]*Buffer)
}

// Coins returns the instruments with a buffer, sorted for determinism.
func (r *Registry) Coins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coins := make([]string, 0, len(r.buffers))
	for coin := range r.buffers {
		coins = append(coins, coin)
	}
	sort.Strings(coins)
	return coins
}

// Len returns the number of buffered trades for the instrument.
func (r *Registry) Len(coin string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buf, ok := r.buffers[coin]
	if !ok {
		return 0
	}
	return buf.count
}
