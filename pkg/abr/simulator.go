// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import (
	"encoding/json"
	"fmt"

	"github.com/pion/logging"
)

// FrameCallback receives every frame as soon as it is produced.
type FrameCallback func(Frame)

// Simulator is the simulation driver. It wires the decision strategy, the
// download simulator, the buffer model and the stall detector into the
// per-segment loop and collects the resulting frames.
//
// State machine:
//
//	Init --validate--> Running --trace exhausted / horizon--> Done
//
// A Simulator runs on a single goroutine. Independent Simulators may share a
// BandwidthTrace and run in parallel.
type Simulator struct {
	config   SimulationConfig
	ladder   Ladder
	trace    *BandwidthTrace
	strategy Strategy
	buffer   BufferModel
	log      logging.LeveledLogger

	state   SimState
	player  *PlayerState
	frames  []Frame
	onFrame FrameCallback

	// Simulated time window of the run.
	start float64
	end   float64
}

// NewSimulator validates config and prepares a run over trace.
// If logger is nil, a logger from the pion default factory is used.
//
// Validation failures wrap ErrInvalidConfig or ErrUnsupportedAlgorithm; a
// nil trace fails with ErrEmptyTrace. No frame is produced on failure.
func NewSimulator(config SimulationConfig, trace *BandwidthTrace, logger logging.LeveledLogger) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if trace == nil {
		return nil, fmt.Errorf("%w: no trace supplied", ErrEmptyTrace)
	}
	strategy, err := NewStrategy(config.Algorithm)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefaultLoggerFactory().NewLogger("abr")
	}

	start := trace.Start()
	end := trace.End()
	if config.MaxHorizon > 0 {
		end = min(end, start+config.MaxHorizon)
	}

	return &Simulator{
		config:   config,
		ladder:   config.Ladder(),
		trace:    trace,
		strategy: strategy,
		buffer:   NewBufferModel(config.BufferSizeMax),
		log:      logger,
		state:    SimInit,
		start:    start,
		end:      end,
	}, nil
}

// SetFrameCallback registers fn to receive each frame as it is produced.
// It must be called before Run.
func (s *Simulator) SetFrameCallback(fn FrameCallback) {
	s.onFrame = fn
}

// State returns the driver state.
func (s *Simulator) State() SimState {
	return s.state
}

// Config returns the run configuration.
func (s *Simulator) Config() SimulationConfig {
	return s.config
}

// Ladder returns the ladder the run fetches from.
func (s *Simulator) Ladder() Ladder {
	return s.ladder
}

// RebufferTime returns the seconds the buffer sat empty during the last run.
func (s *Simulator) RebufferTime() float64 {
	if s.player == nil {
		return 0
	}
	return s.player.RebufferTime()
}

// Run executes the per-segment loop until the trace can no longer complete a
// download or the horizon is reached, and returns the frames in order.
//
// Every call starts from a fresh PlayerState, so repeated calls produce
// identical frames.
func (s *Simulator) Run() ([]Frame, error) {
	s.state = SimInit
	s.player = NewPlayerState(s.config, s.start)
	s.frames = s.frames[:0]
	s.state = SimRunning

	segment := s.ladder.SegmentDuration()
	for s.player.CurrentTime() < s.end {
		bitrate := s.strategy.Decide(s.ladder, s.player, s.config)

		dl, ok := SimulateSegment(bitrate, segment, s.trace, s.player, s.end)
		if !ok {
			break
		}

		startup := !s.player.Playing()
		if startup {
			// The playhead starts with the first segment.
			s.buffer.Deposit(s.player, segment)
		} else {
			s.buffer.Drain(s.player, dl.DownloadTime)
		}

		frame := Frame{
			Timestamp:       s.player.CurrentTime() - s.start,
			BitrateKbps:     bitrate,
			BufferLevelSecs: s.player.BufferLevel(),
			Stalled:         IsStalled(s.player, s.config),
		}
		s.emit(frame)

		if !startup {
			s.buffer.Deposit(s.player, segment)
		}
		s.player.lastBitrate = bitrate

		s.log.Tracef("segment %d: t=%.3f bitrate=%.0f kbps download=%.3fs throughput=%.0f kbps buffer=%.3fs stalled=%t",
			len(s.frames), frame.Timestamp, bitrate, dl.DownloadTime, dl.ThroughputKbps, frame.BufferLevelSecs, frame.Stalled)
	}

	s.state = SimDone
	s.log.Debugf("%s run done: %d frames over %.3fs, rebuffer %.3fs",
		s.config.Algorithm, len(s.frames), s.player.CurrentTime()-s.start, s.player.RebufferTime())

	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out, nil
}

func (s *Simulator) emit(f Frame) {
	s.frames = append(s.frames, f)
	if s.onFrame != nil {
		s.onFrame(f)
	}
}

// RunToTrace runs config over trace and returns the full frame sequence.
func RunToTrace(config SimulationConfig, trace *BandwidthTrace) ([]Frame, error) {
	sim, err := NewSimulator(config, trace, nil)
	if err != nil {
		return nil, err
	}
	return sim.Run()
}

// RunToScore runs config over trace and returns only the QoE score.
// The result equals Score(RunToTrace(config, trace), config.Ladder()).
func RunToScore(config SimulationConfig, trace *BandwidthTrace) (float64, error) {
	frames, err := RunToTrace(config, trace)
	if err != nil {
		return 0, err
	}
	return Score(frames, config.Ladder()), nil
}

// MarshalFrames encodes frames as a JSON array of objects with the fields
// timestamp, bitrate_kbps, buffer_level_secs and stalled. An empty sequence
// encodes as [].
func MarshalFrames(frames []Frame) ([]byte, error) {
	if frames == nil {
		frames = []Frame{}
	}
	return json.Marshal(frames)
}

// UnmarshalFrames decodes a JSON array produced by MarshalFrames.
func UnmarshalFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}
	return frames, nil
}
