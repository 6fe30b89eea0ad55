package session

import "sync"

// Counter enforces the daemon's cap on concurrent session threads. The
// check-and-increment happens under one lock so a burst of connections
// arriving at the cap can't all observe "room available" before any of
// them increments.
type Counter struct {
	mu  sync.Mutex
	n   int
	max int
}

// NewCounter returns a Counter capped at max concurrent sessions.
func NewCounter(max int) *Counter {
	return &Counter{max: max}
}

// TryAcquire atomically checks the cap and, if there's room, increments the
// count and returns true. A caller that gets false must close the new
// connection without reading a byte.
func (c *Counter) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n >= c.max {
		return false
	}
	c.n++
	return true
}

// Release decrements the count. Called once per session thread at exit.
func (c *Counter) Release() {
	c.mu.Lock()
	c.n--
	c.mu.Unlock()
}

// Count returns the current number of active sessions (diagnostic only).
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
