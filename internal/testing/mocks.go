package testing

import (
	"context"
	"sync"

	"github.com/hynous/hynous-data/internal/domain"
)

// MockExchange is a canned exchange client for collector and engine tests.
// It satisfies the fetcher interfaces the modules declare (Meta, AllMids,
// UserState, UserFills). Zero value is usable.
type MockExchange struct {
	mu sync.Mutex

	Coins        []string
	Mids         map[string]float64
	StatesByAddr map[string]*domain.AccountState
	FillsByAddr  map[string][]domain.Fill

	// Err, when set, is returned by every call.
	Err error

	MetaCalls      int
	AllMidsCalls   int
	UserStateCalls int
	UserFillsCalls int
}

// SetState sets the canned account state for an address.
func (m *MockExchange) SetState(address string, state *domain.AccountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatesByAddr == nil {
		m.StatesByAddr = make(map[string]*domain.AccountState)
	}
	m.StatesByAddr[address] = state
}

// SetFills sets the canned fills for an address.
func (m *MockExchange) SetFills(address string, fills []domain.Fill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FillsByAddr == nil {
		m.FillsByAddr = make(map[string][]domain.Fill)
	}
	m.FillsByAddr[address] = fills
}

// SetError makes every subsequent call fail with err.
func (m *MockExchange) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Meta returns the canned instrument list.
func (m *MockExchange) Meta(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MetaCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	coins := make([]string, len(m.Coins))
	copy(coins, m.Coins)
	return coins, nil
}

// AllMids returns the canned mid prices.
func (m *MockExchange) AllMids(ctx context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllMidsCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	mids := make(map[string]float64, len(m.Mids))
	for coin, mid := range m.Mids {
		mids[coin] = mid
	}
	return mids, nil
}

// UserState returns the canned account state for the address. Unknown
// addresses get an empty state rather than an error, matching an account
// with no open positions.
func (m *MockExchange) UserState(ctx context.Context, address string) (*domain.AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserStateCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	if state, ok := m.StatesByAddr[address]; ok {
		copied := *state
		copied.Positions = append([]domain.Position(nil), state.Positions...)
		return &copied, nil
	}
	return &domain.AccountState{Address: address}, nil
}

// UserFills returns the canned fills for the address.
func (m *MockExchange) UserFills(ctx context.Context, address string) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserFillsCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]domain.Fill(nil), m.FillsByAddr[address]...), nil
}

// Calls returns the per-method call counters as a snapshot.
func (m *MockExchange) Calls() (meta, mids, states, fills int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MetaCalls, m.AllMidsCalls, m.UserStateCalls, m.UserFillsCalls
}
