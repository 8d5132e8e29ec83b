package testutil

import "sync"

// DefaultEpoch is the first reading of a StepClock created with a zero start.
// 2025-10-09T08:53:20Z.
const DefaultEpoch int64 = 1760000000000

// StepClock is a deterministic millisecond clock for tests.
//
// Each NowMillis call returns the previous reading plus the step, so commits
// created in sequence get distinct, predictable timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	next  int64
}

// NewStepClock creates a clock whose first reading is start.
// A zero start uses DefaultEpoch and a step below 1 uses 1000 (one second).
func NewStepClock(start, step int64) *StepClock {
	if start == 0 {
		start = DefaultEpoch
	}
	if step < 1 {
		step = 1000
	}
	return &StepClock{start: start, step: step, next: start}
}

// NowMillis returns the current reading and advances the clock.
func (c *StepClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next += c.step
	return now
}

// Peek returns the reading the next NowMillis call will return.
func (c *StepClock) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the same scenario produces identical
// timestamps and therefore identical commit hashes.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
