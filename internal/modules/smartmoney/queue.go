package smartmoney

import (
	"sync"
	"time"
)

// dedupeTTL is how long an enqueued address blocks re-enqueues. Long
// enough to cover a slow drain, short enough that a failed profile gets
// retried on the next ranking.
const dedupeTTL = 5 * time.Minute

// profileQueue is a FIFO of addresses awaiting profiling. A TTL map
// suppresses duplicate enqueues so hot wallets do not flood the drainer.
type profileQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	inQueue map[string]time.Time
	closed  bool
}

func newProfileQueue() *profileQueue {
	q := &profileQueue{inQueue: make(map[string]time.Time)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue adds the address unless it was enqueued within the TTL.
// Expired dedupe entries are pruned lazily here rather than on a timer.
func (q *profileQueue) enqueue(address string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	now := time.Now()
	for addr, at := range q.inQueue {
		if now.Sub(at) > dedupeTTL {
			delete(q.inQueue, addr)
		}
	}

	if _, pending := q.inQueue[address]; pending {
		return false
	}

	q.inQueue[address] = now
	q.items = append(q.items, address)
	q.cond.Signal()
	return true
}

// pop blocks until an address is available, the timeout passes, or the
// queue closes. The second return is false on timeout or close.
func (q *profileQueue) pop(timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false
		}
		// Cond has no deadline wait, so a helper timer delivers the wakeup.
		timer := time.AfterFunc(remaining, func() { q.cond.Broadcast() })
		q.cond.Wait()
		timer.Stop()
	}

	if len(q.items) == 0 {
		return "", false
	}

	address := q.items[0]
	q.items = q.items[1:]
	return address, true
}

// done clears the dedupe entry so the address can be enqueued again
// before the TTL lapses. Called after a successful profile write.
func (q *profileQueue) done(address string) {
	q.mu.Lock()
	delete(q.inQueue, address)
	q.mu.Unlock()
}

// close wakes all waiters; subsequent pops drain the backlog then fail.
func (q *profileQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *profileQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
