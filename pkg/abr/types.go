// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

// AlgorithmType selects the bitrate decision strategy for a run.
type AlgorithmType int

const (
	// ThroughputBased picks the highest rung at or below the moving average
	// of recently observed segment throughputs.
	ThroughputBased AlgorithmType = iota
	// BufferBased picks a rung from buffer occupancy alone.
	BufferBased
	// Hybrid picks the lower of the throughput and buffer ceilings.
	Hybrid
)

// String returns a string representation of the AlgorithmType.
func (a AlgorithmType) String() string {
	switch a {
	case ThroughputBased:
		return "ThroughputBased"
	case BufferBased:
		return "BufferBased"
	case Hybrid:
		return "Hybrid"
	default:
		return "Unknown"
	}
}

// Valid reports whether a names a known decision strategy.
func (a AlgorithmType) Valid() bool {
	return a >= ThroughputBased && a <= Hybrid
}

// Algorithms lists every supported AlgorithmType in wire order.
func Algorithms() []AlgorithmType {
	return []AlgorithmType{ThroughputBased, BufferBased, Hybrid}
}

// SimState represents the simulation driver state machine.
//
//	INIT --validate--> RUNNING --trace exhausted / horizon--> DONE
type SimState int

const (
	// SimInit is the state before validation and player initialization.
	SimInit SimState = iota
	// SimRunning indicates the per-segment loop is in progress.
	SimRunning
	// SimDone indicates the run has finished and frames are final.
	SimDone
)

// String returns a string representation of the SimState.
func (s SimState) String() string {
	switch s {
	case SimInit:
		return "Init"
	case SimRunning:
		return "Running"
	case SimDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Frame is the telemetry record emitted once per downloaded segment.
// Frames are immutable once produced.
type Frame struct {
	// Timestamp is the segment arrival time in seconds since the run started.
	Timestamp float64 `json:"timestamp"`

	// BitrateKbps is the ladder rung the segment was fetched at.
	BitrateKbps float64 `json:"bitrate_kbps"`

	// BufferLevelSecs is the buffer level observed when the segment arrived.
	BufferLevelSecs float64 `json:"buffer_level_secs"`

	// Stalled is true when BufferLevelSecs is at or below the stall threshold.
	Stalled bool `json:"stalled"`
}
