// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import "github.com/thesyncim/abrsim/pkg/abr/internal"

// PlayerState is the mutable state of one simulation run.
//
// It is created when a run starts, mutated only by the simulation driver
// through the download simulator and buffer model, and discarded when the
// run ends. A PlayerState is never shared across runs; decision strategies
// receive it read-only.
type PlayerState struct {
	clock       *internal.SimClock
	bufferLevel float64
	lastBitrate float64
	history     *ThroughputHistory
	playing     bool

	// Cumulative seconds the playhead waited on an empty buffer.
	rebufferTime float64
}

// NewPlayerState creates the initial state for a run starting at start
// seconds of trace time, with an empty buffer and no throughput history.
func NewPlayerState(cfg SimulationConfig, start float64) *PlayerState {
	return &PlayerState{
		clock:   internal.NewSimClock(start),
		history: NewThroughputHistory(cfg.WindowSize),
	}
}

// CurrentTime returns the simulated time in seconds of trace time.
func (s *PlayerState) CurrentTime() float64 {
	return s.clock.Now()
}

// BufferLevel returns the seconds of downloaded, not yet played media.
func (s *PlayerState) BufferLevel() float64 {
	return s.bufferLevel
}

// LastBitrate returns the rung of the previous segment, or 0 before the
// first segment.
func (s *PlayerState) LastBitrate() float64 {
	return s.lastBitrate
}

// Playing reports whether playback has started.
func (s *PlayerState) Playing() bool {
	return s.playing
}

// RebufferTime returns the cumulative seconds the buffer sat empty while a
// download was in flight.
func (s *PlayerState) RebufferTime() float64 {
	return s.rebufferTime
}

// ThroughputMean returns the moving average of the recent segment
// throughputs in kbps, or (0, false) if no segment has been downloaded.
func (s *PlayerState) ThroughputMean() (float64, bool) {
	return s.history.Mean()
}

// ThroughputSamples returns the recent segment throughputs, oldest first.
func (s *PlayerState) ThroughputSamples() []float64 {
	return s.history.Values()
}
