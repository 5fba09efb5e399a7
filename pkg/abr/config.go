// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import (
	"fmt"
	"math"
)

// SimulationConfig holds the immutable configuration of one simulation run.
type SimulationConfig struct {
	// Algorithm selects the bitrate decision strategy.
	Algorithm AlgorithmType

	// WindowSize is the number of past segment throughputs averaged by the
	// throughput-driven strategies. Must be >= 1.
	WindowSize int

	// BufferSizeMax is the buffer capacity in seconds. Must be > 0.
	BufferSizeMax float64

	// SegmentDuration is the playback length of one segment in seconds.
	// Must be > 0.
	SegmentDuration float64

	// StallThreshold is the buffer level in seconds at or below which the
	// player is stalled. Must be >= 0 and < BufferSizeMax.
	StallThreshold float64

	// Bitrates optionally overrides the ladder rungs in kbps.
	// Nil selects DefaultBitrates.
	Bitrates []float64

	// MaxHorizon optionally caps the run at this many seconds of simulated
	// time. Zero runs until the trace is exhausted.
	MaxHorizon float64
}

// DefaultSimulationConfig returns the reference configuration:
// Hybrid decisions over a 3-segment window, a 10 s buffer, 1 s segments
// and a 0.5 s stall threshold.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Algorithm:       Hybrid,
		WindowSize:      3,
		BufferSizeMax:   10.0,
		SegmentDuration: 1.0,
		StallThreshold:  0.5,
	}
}

// Validate checks every field against its domain constraint.
// Violations are reported, never clamped: the returned error wraps
// ErrInvalidConfig or ErrUnsupportedAlgorithm.
func (c SimulationConfig) Validate() error {
	if !c.Algorithm.Valid() {
		return fmt.Errorf("%w: algorithm %d", ErrUnsupportedAlgorithm, int(c.Algorithm))
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("%w: window size must be >= 1, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if !finite(c.BufferSizeMax) || c.BufferSizeMax <= 0 {
		return fmt.Errorf("%w: buffer size max must be > 0, got %v", ErrInvalidConfig, c.BufferSizeMax)
	}
	if !finite(c.SegmentDuration) || c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration must be > 0, got %v", ErrInvalidConfig, c.SegmentDuration)
	}
	if !finite(c.StallThreshold) || c.StallThreshold < 0 {
		return fmt.Errorf("%w: stall threshold must be >= 0, got %v", ErrInvalidConfig, c.StallThreshold)
	}
	if c.StallThreshold >= c.BufferSizeMax {
		return fmt.Errorf("%w: stall threshold %v must be below buffer size max %v",
			ErrInvalidConfig, c.StallThreshold, c.BufferSizeMax)
	}
	if !finite(c.MaxHorizon) || c.MaxHorizon < 0 {
		return fmt.Errorf("%w: max horizon must be >= 0, got %v", ErrInvalidConfig, c.MaxHorizon)
	}
	if c.Bitrates != nil {
		if _, err := NewLadder(c.SegmentDuration, c.Bitrates); err != nil {
			return err
		}
	}
	return nil
}

// Ladder returns the segment ladder described by the configuration.
// The configuration must be valid.
func (c SimulationConfig) Ladder() Ladder {
	rates := c.Bitrates
	if rates == nil {
		rates = DefaultBitrates
	}
	l, err := NewLadder(c.SegmentDuration, rates)
	if err != nil {
		panic(fmt.Sprintf("SimulationConfig.Ladder: %v", err))
	}
	return l
}

// ParseAlgorithm maps a wire-level selector onto an AlgorithmType.
// Unknown values fail with ErrUnsupportedAlgorithm.
func ParseAlgorithm(v uint32) (AlgorithmType, error) {
	a := AlgorithmType(v)
	if v > uint32(Hybrid) || !a.Valid() {
		return 0, fmt.Errorf("%w: abr type %d", ErrUnsupportedAlgorithm, v)
	}
	return a, nil
}

// ParseAlgorithmName maps a case-sensitive strategy name, as printed by
// AlgorithmType.String, or its short form onto an AlgorithmType.
func ParseAlgorithmName(name string) (AlgorithmType, error) {
	switch name {
	case "ThroughputBased", "throughput":
		return ThroughputBased, nil
	case "BufferBased", "buffer":
		return BufferBased, nil
	case "Hybrid", "hybrid":
		return Hybrid, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
