// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import "fmt"

// Strategy selects the bitrate for the next segment.
//
// Implementations must be pure functions of their inputs: they consult the
// player state and configuration and must not modify either.
type Strategy interface {
	// Decide returns the ladder rung in kbps for the next segment.
	Decide(ladder Ladder, state *PlayerState, cfg SimulationConfig) float64
}

// NewStrategy returns the decision strategy for an AlgorithmType.
// Unknown types fail with ErrUnsupportedAlgorithm.
func NewStrategy(a AlgorithmType) (Strategy, error) {
	switch a {
	case ThroughputBased:
		return ThroughputStrategy{}, nil
	case BufferBased:
		return NewBufferStrategy(DefaultReservoir), nil
	case Hybrid:
		return HybridStrategy{
			Throughput: ThroughputStrategy{},
			Buffer:     NewBufferStrategy(DefaultReservoir),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %v (%d)", ErrUnsupportedAlgorithm, a, int(a))
	}
}

// ThroughputStrategy chooses the highest rung at or below the simple moving
// average of the last WindowSize observed segment throughputs.
// With no history it chooses the lowest rung.
type ThroughputStrategy struct{}

// Decide implements Strategy for ThroughputStrategy.
func (ThroughputStrategy) Decide(ladder Ladder, state *PlayerState, _ SimulationConfig) float64 {
	avg, ok := state.ThroughputMean()
	if !ok {
		return ladder.Lowest()
	}
	return ladder.Floor(avg)
}

// DefaultReservoir is the fraction of the buffer reserved at each end of
// the buffer-based rate map.
const DefaultReservoir = 0.1

// BufferStrategy chooses a rung from buffer occupancy alone, following the
// reservoir/cushion map of buffer-based adaptation:
//
//	occupancy <= reservoir          lowest rung
//	occupancy >= 1 - reservoir      highest rung
//	in between                      linear from lowest to highest, floored to a rung
//
// where occupancy = BufferLevel / BufferSizeMax. The map is monotonic.
type BufferStrategy struct {
	reservoir float64
}

// NewBufferStrategy creates a buffer strategy with the given reservoir
// fraction. Values outside [0, 0.5) fall back to DefaultReservoir.
func NewBufferStrategy(reservoir float64) BufferStrategy {
	if reservoir < 0 || reservoir >= 0.5 {
		reservoir = DefaultReservoir
	}
	return BufferStrategy{reservoir: reservoir}
}

// Decide implements Strategy for BufferStrategy.
func (b BufferStrategy) Decide(ladder Ladder, state *PlayerState, cfg SimulationConfig) float64 {
	occupancy := state.BufferLevel() / cfg.BufferSizeMax
	switch {
	case occupancy <= b.reservoir:
		return ladder.Lowest()
	case occupancy >= 1-b.reservoir:
		return ladder.Highest()
	}

	cushion := (occupancy - b.reservoir) / (1 - 2*b.reservoir)
	target := ladder.Lowest() + cushion*(ladder.Highest()-ladder.Lowest())
	return ladder.Floor(target)
}

// HybridStrategy takes the lower of a throughput-safe ceiling and a
// buffer-comfort ceiling, so either signal alone can force a conservative
// choice.
type HybridStrategy struct {
	Throughput ThroughputStrategy
	Buffer     BufferStrategy
}

// Decide implements Strategy for HybridStrategy.
func (h HybridStrategy) Decide(ladder Ladder, state *PlayerState, cfg SimulationConfig) float64 {
	return min(
		h.Throughput.Decide(ladder, state, cfg),
		h.Buffer.Decide(ladder, state, cfg),
	)
}
