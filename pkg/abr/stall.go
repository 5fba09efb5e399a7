// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

// IsStalled reports whether the player is stalled: the buffer level is at or
// below the configured stall threshold.
//
// The predicate is stateless. It is evaluated once per frame after the
// buffer model has updated the state for that segment, so consecutive frames
// may all be stalled and there is no separate recovering state.
func IsStalled(s *PlayerState, cfg SimulationConfig) bool {
	return s.bufferLevel <= cfg.StallThreshold
}
