package engine

import "time"

// Clock supplies commit timestamps in epoch milliseconds.
//
// Timestamps are display data only; commit order comes from the store's
// insertion sequence. Tests inject a deterministic clock.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowMillis returns the current time in epoch milliseconds.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

// NowMillis calls f.
func (f ClockFunc) NowMillis() int64 {
	return f()
}
