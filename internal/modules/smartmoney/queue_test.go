package smartmoney

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOAndDedupe(t *testing.T) {
	q := newProfileQueue()

	assert.True(t, q.enqueue("0xaaa"))
	assert.True(t, q.enqueue("0xbbb"))
	assert.False(t, q.enqueue("0xaaa"), "duplicate within TTL must be rejected")
	assert.Equal(t, 2, q.len())

	addr, ok := q.pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "0xaaa", addr)

	addr, ok = q.pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "0xbbb", addr)
}

func TestQueueDoneAllowsReenqueue(t *testing.T) {
	q := newProfileQueue()

	require.True(t, q.enqueue("0xaaa"))
	_, ok := q.pop(time.Second)
	require.True(t, ok)

	// Still deduped until done clears the entry.
	assert.False(t, q.enqueue("0xaaa"))
	q.done("0xaaa")
	assert.True(t, q.enqueue("0xaaa"))
}

func TestQueuePopTimesOut(t *testing.T) {
	q := newProfileQueue()

	start := time.Now()
	_, ok := q.pop(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueuePopWakesOnEnqueue(t *testing.T) {
	q := newProfileQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.enqueue("0xccc")
	}()

	addr, ok := q.pop(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, "0xccc", addr)
}

func TestQueueCloseWakesWaiters(t *testing.T) {
	q := newProfileQueue()

	done := make(chan struct{})
	go func() {
		_, ok := q.pop(10 * time.Second)
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not return after close")
	}

	assert.False(t, q.enqueue("0xddd"), "closed queue rejects enqueues")
}
