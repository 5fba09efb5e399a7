// Package internal provides internal utilities for the abr package.
package internal

import (
	"fmt"
	"math"
)

// SimClock is a monotonic clock over simulated time, in seconds.
// The engine never consults wall-clock time; every run owns one SimClock
// and advances it by the duration of each simulated download.
// It is not safe for concurrent use.
type SimClock struct {
	current float64
}

// NewSimClock creates a SimClock initialized to start seconds.
// Panics if start is negative or not finite.
func NewSimClock(start float64) *SimClock {
	if start < 0 || math.IsNaN(start) || math.IsInf(start, 0) {
		panic(fmt.Sprintf("SimClock: invalid start time %v", start))
	}
	return &SimClock{current: start}
}

// Now returns the current simulated time in seconds.
func (c *SimClock) Now() float64 {
	return c.current
}

// Advance moves the clock forward by d seconds.
// Panics if d is negative or not finite to maintain monotonicity.
func (c *SimClock) Advance(d float64) {
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		panic(fmt.Sprintf("SimClock.Advance: duration must be finite and non-negative, got %v", d))
	}
	c.current += d
}

// AdvanceTo moves the clock to t. Panics if t is before the current time.
func (c *SimClock) AdvanceTo(t float64) {
	if t < c.current || math.IsNaN(t) {
		panic(fmt.Sprintf("SimClock.AdvanceTo: %v is before current time %v", t, c.current))
	}
	c.current = t
}
