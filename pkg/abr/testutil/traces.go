package testutil

import (
	"fmt"

	"github.com/thesyncim/abrsim/pkg/abr"
	"github.com/thesyncim/abrsim/pkg/abr/internal"
)

// Scenario is a named network condition.
type Scenario struct {
	Name        string
	Description string
	Trace       *abr.BandwidthTrace
}

// StableTrace holds kbps for duration seconds with no variation.
func StableTrace(kbps, duration float64) *abr.BandwidthTrace {
	return must(abr.ConstantTrace(kbps, duration))
}

// OutageScenario drops a baseKbps link to 1 kbps for outageLen seconds
// starting at outageStart.
func OutageScenario(baseKbps, duration, outageStart, outageLen float64) *abr.BandwidthTrace {
	return must(abr.OutageTrace(baseKbps, 1, duration, outageStart, outageLen))
}

// StepDownTrace halves capacity every stepSecs seconds, starting at
// startKbps, for the given number of steps.
func StepDownTrace(startKbps, stepSecs float64, steps int) *abr.BandwidthTrace {
	phases := make([]abr.Phase, steps)
	kbps := startKbps
	for i := range phases {
		phases[i] = abr.Phase{Duration: stepSecs, ThroughputKbps: kbps}
		kbps /= 2
	}
	return must(abr.PhasedTrace(phases...))
}

// SawtoothTrace alternates between lowKbps and highKbps every periodSecs
// seconds for cycles full periods.
func SawtoothTrace(lowKbps, highKbps, periodSecs float64, cycles int) *abr.BandwidthTrace {
	phases := make([]abr.Phase, 0, 2*cycles)
	for range cycles {
		phases = append(phases,
			abr.Phase{Duration: periodSecs, ThroughputKbps: highKbps},
			abr.Phase{Duration: periodSecs, ThroughputKbps: lowKbps},
		)
	}
	return must(abr.PhasedTrace(phases...))
}

// RandomTrace returns a seeded random walk of duration seconds.
func RandomTrace(seed int64, duration float64) *abr.BandwidthTrace {
	cfg := abr.DefaultRandomWalkConfig()
	cfg.Seed = seed
	cfg.Duration = duration
	return must(abr.RandomWalkTrace(cfg))
}

// Scenarios returns the standard scenario set the soak runner checks every
// algorithm against.
func Scenarios() []Scenario {
	return []Scenario{
		{"stable", "20 Mbps for 60s, sustains the top rung", StableTrace(20000, 60)},
		{"outage", "20 Mbps with a 5s outage at t=1s", OutageScenario(20000, 60, 1, 5)},
		{"step_down", "8 Mbps halving every 15s", StepDownTrace(8000, 15, 4)},
		{"sawtooth", "alternating 600 kbps and 5 Mbps every 8s", SawtoothTrace(600, 5000, 8, 5)},
		{"random_walk", "seeded random walk between 400 kbps and 8 Mbps", RandomTrace(1, 120)},
	}
}

// RandomConfig returns a valid configuration derived deterministically
// from seed.
func RandomConfig(seed int64) abr.SimulationConfig {
	r := internal.NewSplitMix64(seed)
	algos := abr.Algorithms()

	// buffer in [2, 30), segment in [0.25, 6), threshold below half the buffer
	bufferMax := 2 + r.Float64()*28
	segment := 0.25 + r.Float64()*5.75
	threshold := r.Float64() * 0.5 * bufferMax
	return abr.SimulationConfig{
		Algorithm:       algos[r.Intn(len(algos))],
		WindowSize:      1 + r.Intn(10),
		BufferSizeMax:   bufferMax,
		SegmentDuration: segment,
		StallThreshold:  threshold,
	}
}

func must(t *abr.BandwidthTrace, err error) *abr.BandwidthTrace {
	if err != nil {
		panic(fmt.Sprintf("testutil: %v", err))
	}
	return t
}
