// Package counter provides a thread-safe monotone identifier allocator.
package counter

import "sync/atomic"

// Counter produces strictly monotone, globally unique 64-bit identifiers
// starting from a caller-provided seed. Safe for concurrent use.
type Counter struct {
	next uint64
}

// New creates a counter whose first Next() call returns seed.
func New(seed uint64) *Counter {
	return &Counter{next: seed - 1}
}

// Next returns the next identifier in the sequence.
func (c *Counter) Next() uint64 {
	return atomic.AddUint64(&c.next, 1)
}
