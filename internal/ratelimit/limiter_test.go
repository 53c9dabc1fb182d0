package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquire_ImmediateWhenBudgetAvailable(t *testing.T) {
	l := New(1200, 70)

	assert.True(t, l.Acquire(2, 0))
	assert.InDelta(t, 838, l.Available(), 1)
}

func TestAcquire_SafetyPctDeratesCapacity(t *testing.T) {
	l := New(1200, 70)
	assert.InDelta(t, 840, l.MaxWeight(), 1e-9)

	full := New(1200, 100)
	assert.InDelta(t, 1200, full.MaxWeight(), 1e-9)
}

func TestAcquire_ZeroTimeoutDeniesWhenExhausted(t *testing.T) {
	l := New(60, 100)

	assert.True(t, l.Acquire(60, 0))
	assert.False(t, l.Acquire(1, 0))

	stats := l.Stats()
	assert.Equal(t, int64(1), stats["acquired"])
	assert.Equal(t, int64(1), stats["denied"])
	assert.InDelta(t, 60.0, stats["weight_granted"].(float64), 0.1)
}

func TestRefill_OneTokenPerSecondAtSixtyPerMinute(t *testing.T) {
	l := New(60, 100)

	assert.True(t, l.Acquire(60, 0))
	time.Sleep(1100 * time.Millisecond)

	// 60/min refills 1/s, so ~1.1 tokens are back.
	available := l.Available()
	assert.GreaterOrEqual(t, available, 0.9)
	assert.Less(t, available, 2.0)
}

func TestAcquire_BlocksUntilRefill(t *testing.T) {
	l := New(60, 100)
	assert.True(t, l.Acquire(60, 0))

	start := time.Now()
	assert.True(t, l.Acquire(1, 3*time.Second))
	elapsed := time.Since(start)

	// One token takes ~1s to refill.
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 2500*time.Millisecond)
}

func TestAcquire_SafetyZeroAlwaysFails(t *testing.T) {
	l := New(1200, 0)

	assert.False(t, l.Acquire(1, 50*time.Millisecond))
	assert.False(t, l.Acquire(0.1, 0))
	assert.Equal(t, 0.0, l.Available())
}

func TestAcquire_WeightAboveCapacityTimesOut(t *testing.T) {
	l := New(60, 100)

	start := time.Now()
	assert.False(t, l.Acquire(100, 100*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAvailable_NeverExceedsCapacity(t *testing.T) {
	l := New(60, 100)

	assert.True(t, l.Acquire(10, 0))
	time.Sleep(50 * time.Millisecond)

	assert.LessOrEqual(t, l.Available(), 60.0)

	// Long idle clamps at capacity, it does not overflow.
	l.mu.Lock()
	l.lastRefill = time.Now().Add(-10 * time.Minute)
	l.mu.Unlock()
	assert.Equal(t, 60.0, l.Available())
}

func TestAcquire_ConcurrentAcquirersAllAccounted(t *testing.T) {
	l := New(600, 100)

	var wg sync.WaitGroup
	granted := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted <- l.Acquire(1, time.Second)
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for ok := range granted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 20, count)

	stats := l.Stats()
	assert.Equal(t, int64(20), stats["acquired"])
	assert.InDelta(t, 20.0, stats["weight_granted"].(float64), 0.1)
}
