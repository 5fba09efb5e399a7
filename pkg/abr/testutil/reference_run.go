package testutil

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/thesyncim/abrsim/pkg/abr"
)

// ReferenceRun is a recorded simulation used as a golden file.
//
// File format:
//
//	{
//	    "name": "outage",
//	    "description": "...",
//	    "config": {"Algorithm": 0, "WindowSize": 3, ...},
//	    "frames": [{"timestamp": 0.015, "bitrate_kbps": 300, "buffer_level_secs": 1, "stalled": false}, ...],
//	    "score": 87.3,
//	    "trace": [{"time": 0, "throughput_kbps": 20000}, ...]
//	}
//
// Trace holds the bandwidth samples the run was recorded over, so a golden
// file can be replayed on its own.
type ReferenceRun struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Config      abr.SimulationConfig `json:"config"`
	Frames      []abr.Frame          `json:"frames"`
	Score       float64              `json:"score"`
	Trace       []abr.Sample         `json:"trace,omitempty"`
}

// RecordRun simulates cfg over scenario and captures the result.
func RecordRun(scenario Scenario, cfg abr.SimulationConfig) (*ReferenceRun, error) {
	frames, err := abr.RunToTrace(cfg, scenario.Trace)
	if err != nil {
		return nil, err
	}
	return &ReferenceRun{
		Name:        scenario.Name,
		Description: scenario.Description,
		Config:      cfg,
		Frames:      frames,
		Score:       abr.Score(frames, cfg.Ladder()),
		Trace:       scenario.Trace.Samples(),
	}, nil
}

// BandwidthTrace rebuilds the trace the run was recorded over.
func (r *ReferenceRun) BandwidthTrace() (*abr.BandwidthTrace, error) {
	if len(r.Trace) == 0 {
		return nil, fmt.Errorf("%w: reference run %q has no trace", abr.ErrEmptyTrace, r.Name)
	}
	return abr.NewBandwidthTrace(r.Trace)
}

// LoadRun reads a reference run from a JSON file.
func LoadRun(path string) (*ReferenceRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference run %s: %w", path, err)
	}

	var run ReferenceRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse reference run %s: %w", path, err)
	}
	return &run, nil
}

// SaveRun writes run to path as indented JSON.
func SaveRun(path string, run *ReferenceRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DivergenceResult compares a run's frames against a reference run.
type DivergenceResult struct {
	// MaxBufferDiff is the largest absolute buffer-level difference in seconds.
	MaxBufferDiff float64

	// MaxTimestampDiff is the largest absolute timestamp difference in seconds.
	MaxTimestampDiff float64

	// BitrateMismatches counts frames that chose a different rung.
	BitrateMismatches int

	// StallMismatches counts frames whose stalled flag differs.
	StallMismatches int

	// ComparedFrames is the length of the common prefix.
	ComparedFrames int

	// FrameCountDiff is len(ours) - len(reference).
	FrameCountDiff int
}

// Identical reports whether the two runs agree frame for frame.
func (d DivergenceResult) Identical() bool {
	return d.FrameCountDiff == 0 && d.BitrateMismatches == 0 && d.StallMismatches == 0 &&
		d.MaxBufferDiff == 0 && d.MaxTimestampDiff == 0
}

// CalculateDivergence compares ours against ref over their common prefix.
func CalculateDivergence(ours []abr.Frame, ref *ReferenceRun) DivergenceResult {
	n := min(len(ours), len(ref.Frames))
	result := DivergenceResult{
		ComparedFrames: n,
		FrameCountDiff: len(ours) - len(ref.Frames),
	}
	for i := range n {
		a, b := ours[i], ref.Frames[i]
		result.MaxBufferDiff = max(result.MaxBufferDiff, math.Abs(a.BufferLevelSecs-b.BufferLevelSecs))
		result.MaxTimestampDiff = max(result.MaxTimestampDiff, math.Abs(a.Timestamp-b.Timestamp))
		if a.BitrateKbps != b.BitrateKbps {
			result.BitrateMismatches++
		}
		if a.Stalled != b.Stalled {
			result.StallMismatches++
		}
	}
	return result
}
