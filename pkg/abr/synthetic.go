// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import (
	"fmt"
	"math"

	"github.com/thesyncim/abrsim/pkg/abr/internal"
)

// Phase is a span of constant capacity used to build stepped traces.
type Phase struct {
	// Duration is the phase length in seconds.
	Duration float64 `json:"duration" yaml:"duration"`

	// ThroughputKbps is the capacity held for the whole phase.
	ThroughputKbps float64 `json:"throughput_kbps" yaml:"throughput_kbps"`
}

// ConstantTrace returns a trace holding kbps for duration seconds.
func ConstantTrace(kbps, duration float64) (*BandwidthTrace, error) {
	return PhasedTrace(Phase{Duration: duration, ThroughputKbps: kbps})
}

// PhasedTrace concatenates phases into a trace starting at t=0.
// Zero-length phases are skipped.
func PhasedTrace(phases ...Phase) (*BandwidthTrace, error) {
	samples := make([]Sample, 0, len(phases)+1)
	var t float64
	for i, p := range phases {
		if !finite(p.Duration) || p.Duration < 0 {
			return nil, fmt.Errorf("%w: phase %d has duration %v", ErrInvalidTrace, i, p.Duration)
		}
		if p.Duration == 0 {
			continue
		}
		samples = append(samples, Sample{Time: t, ThroughputKbps: p.ThroughputKbps})
		t += p.Duration
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no phase with positive duration", ErrEmptyTrace)
	}
	samples = append(samples, Sample{Time: t, ThroughputKbps: samples[len(samples)-1].ThroughputKbps})
	return NewBandwidthTrace(samples)
}

// OutageTrace holds baseKbps for duration seconds except during
// [outageStart, outageStart+outageLen), where outageKbps is available.
func OutageTrace(baseKbps, outageKbps, duration, outageStart, outageLen float64) (*BandwidthTrace, error) {
	if outageStart < 0 || outageLen < 0 || outageStart+outageLen > duration {
		return nil, fmt.Errorf("%w: outage [%v, %v) outside [0, %v)",
			ErrInvalidTrace, outageStart, outageStart+outageLen, duration)
	}
	return PhasedTrace(
		Phase{Duration: outageStart, ThroughputKbps: baseKbps},
		Phase{Duration: outageLen, ThroughputKbps: outageKbps},
		Phase{Duration: duration - outageStart - outageLen, ThroughputKbps: baseKbps},
	)
}

// RandomWalkConfig configures RandomWalkTrace.
type RandomWalkConfig struct {
	// Seed makes the walk reproducible.
	Seed int64

	// Duration is the covered time in seconds.
	Duration float64

	// Step is the spacing between samples in seconds.
	Step float64

	// MinKbps and MaxKbps bound the walk.
	MinKbps float64
	MaxKbps float64

	// MaxChange is the largest relative change between consecutive samples,
	// e.g. 0.3 for ±30%.
	MaxChange float64
}

// DefaultRandomWalkConfig returns a two-minute walk between 400 kbps and
// 8 Mbps sampled every second.
func DefaultRandomWalkConfig() RandomWalkConfig {
	return RandomWalkConfig{
		Seed:      1,
		Duration:  120,
		Step:      1,
		MinKbps:   400,
		MaxKbps:   8000,
		MaxChange: 0.3,
	}
}

// RandomWalkTrace generates a multiplicative random walk. The same config
// always yields the same trace.
func RandomWalkTrace(cfg RandomWalkConfig) (*BandwidthTrace, error) {
	if !finite(cfg.Step) || cfg.Step <= 0 || !finite(cfg.Duration) || cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: random walk needs positive step and duration", ErrInvalidTrace)
	}
	if cfg.MinKbps <= 0 || cfg.MaxKbps < cfg.MinKbps {
		return nil, fmt.Errorf("%w: random walk bounds [%v, %v]", ErrInvalidTrace, cfg.MinKbps, cfg.MaxKbps)
	}

	n := int(math.Ceil(cfg.Duration / cfg.Step))
	samples := make([]Sample, 0, n+1)
	rate := (cfg.MinKbps + cfg.MaxKbps) / 2
	rng := internal.NewSplitMix64(cfg.Seed)
	for i := range n {
		samples = append(samples, Sample{Time: float64(i) * cfg.Step, ThroughputKbps: rate})

		rate *= 1 + cfg.MaxChange*(2*rng.Float64()-1)
		rate = min(max(rate, cfg.MinKbps), cfg.MaxKbps)
	}
	samples = append(samples, Sample{Time: cfg.Duration, ThroughputKbps: rate})
	return NewBandwidthTrace(samples)
}

// DefaultTrace is the trace used when a caller supplies only a configuration.
func DefaultTrace() *BandwidthTrace {
	t, err := RandomWalkTrace(DefaultRandomWalkConfig())
	if err != nil {
		panic(fmt.Sprintf("DefaultTrace: %v", err))
	}
	return t
}
