// Package queue implements a FIFO of Action Items shared between session
// threads (producers) and worker threads (consumers), protected by a mutex
// and condition variable rather than a channel so Size() can be read
// consistently with Enqueue/Dequeue under the same lock.
package queue

import (
	"sync"

	"github.com/GSI-HPC/fsqd/internal/action"
)

// Queue is a blocking FIFO of *action.Item.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*action.Item
	closed bool
}

// New returns an empty, ready-to-use Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item to the tail and wakes one waiting Dequeue call.
func (q *Queue) Enqueue(item *action.Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Dequeue blocks until an item is available (or the queue is closed),
// pops the head, and returns it. It returns ok=false only once the queue
// has been closed and drained.
func (q *Queue) Dequeue() (item *action.Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Size returns the current length. Diagnostic only: callers MUST NOT base
// correctness decisions on this value without holding the lock themselves.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes every blocked Dequeue; subsequent
// Dequeue calls on an empty, closed queue return ok=false immediately, while
// items still queued are handed out as usual. Used by the daemon
// supervisor's shutdown, which lets workers drain the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
