// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import "errors"

// Error kinds surfaced by the engine. Callers distinguish them with errors.Is;
// returned errors wrap one of these with the offending detail.
var (
	// ErrInvalidConfig reports a SimulationConfig field outside its domain.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnsupportedAlgorithm reports an algorithm selector with no strategy.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrEmptyTrace reports a bandwidth trace without coverage over any
	// positive duration.
	ErrEmptyTrace = errors.New("empty trace")
)

// ErrInvalidTrace reports a malformed bandwidth sample: negative or
// decreasing time, or non-positive throughput.
var ErrInvalidTrace = errors.New("invalid trace")
