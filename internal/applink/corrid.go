package applink

import "sync/atomic"

// CorrelationIDs hands out request correlation IDs for one session. The
// counter is 64 bits wide, so it cannot wrap within a session's lifetime.
type CorrelationIDs struct {
	next atomic.Uint64
}

// NewCorrelationIDs returns an allocator whose first ID is start
func NewCorrelationIDs(start uint64) *CorrelationIDs {
	c := &CorrelationIDs{}
	c.next.Store(start)
	return c
}

// Next returns the current value and advances the counter
func (c *CorrelationIDs) Next() uint64 {
	return c.next.Add(1) - 1
}

// Peek returns the value the next call to Next will return
func (c *CorrelationIDs) Peek() uint64 {
	return c.next.Load()
}
