// Package testutil provides deterministic building blocks for tests:
// a frozen wall clock and a throwaway on-disk store.
package testutil

import (
	"sync"
	"time"
)

// FrozenClock is a wall clock pinned to a fixed instant.
//
// Engines built with a FrozenClock stamp every ledger entry with the same
// timestamp, which makes folded state and golden snapshots byte-stable
// across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type FrozenClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozenClock returns a clock pinned to at (normalized to UTC).
func NewFrozenClock(at time.Time) *FrozenClock {
	return &FrozenClock{now: at.UTC()}
}

// Now returns the pinned instant.
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the pinned instant forward by d.
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set repins the clock to at (normalized to UTC).
func (c *FrozenClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}
