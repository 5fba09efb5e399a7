// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import (
	"fmt"

	"github.com/influxdata/tdigest"
)

// Summary aggregates a run for reporting.
type Summary struct {
	Frames int `json:"frames" yaml:"frames"`

	// StartupDelay is the arrival time of the first segment in seconds.
	StartupDelay float64 `json:"startup_delay_secs" yaml:"startup_delay_secs"`

	// Duration is the arrival time of the last segment in seconds.
	Duration float64 `json:"duration_secs" yaml:"duration_secs"`

	MeanBitrateKbps float64 `json:"mean_bitrate_kbps" yaml:"mean_bitrate_kbps"`
	Switches        int     `json:"switches" yaml:"switches"`
	StalledFrames   int     `json:"stalled_frames" yaml:"stalled_frames"`
	StalledSeconds  float64 `json:"stalled_secs" yaml:"stalled_secs"`

	// Buffer level distribution across frames, in seconds.
	BufferMin float64 `json:"buffer_min_secs" yaml:"buffer_min_secs"`
	BufferP10 float64 `json:"buffer_p10_secs" yaml:"buffer_p10_secs"`
	BufferP50 float64 `json:"buffer_p50_secs" yaml:"buffer_p50_secs"`
	BufferP90 float64 `json:"buffer_p90_secs" yaml:"buffer_p90_secs"`

	// RungShare maps each ladder rung to the fraction of frames fetched at it.
	RungShare map[float64]float64 `json:"-" yaml:"-"`

	Score float64 `json:"score" yaml:"score"`
}

// Summarize computes a Summary of frames against ladder.
func Summarize(frames []Frame, ladder Ladder) Summary {
	b := ScoreFrames(frames, ladder)
	s := Summary{
		Frames:          b.Frames,
		MeanBitrateKbps: b.MeanBitrateKbps,
		Switches:        b.Switches,
		StalledFrames:   b.StalledFrames,
		StalledSeconds:  b.StalledSeconds,
		RungShare:       make(map[float64]float64, ladder.Len()),
		Score:           b.Score,
	}
	if len(frames) == 0 {
		return s
	}

	s.StartupDelay = frames[0].Timestamp
	s.Duration = frames[len(frames)-1].Timestamp

	td := tdigest.NewWithCompression(100)
	s.BufferMin = frames[0].BufferLevelSecs
	for _, f := range frames {
		td.Add(f.BufferLevelSecs, 1)
		s.BufferMin = min(s.BufferMin, f.BufferLevelSecs)
		s.RungShare[f.BitrateKbps]++
	}
	s.BufferP10 = td.Quantile(0.10)
	s.BufferP50 = td.Quantile(0.50)
	s.BufferP90 = td.Quantile(0.90)

	for rung := range s.RungShare {
		s.RungShare[rung] /= float64(len(frames))
	}
	return s
}

// String returns a one-line report of the summary.
func (s Summary) String() string {
	return fmt.Sprintf("frames=%d startup=%.3fs mean=%.0fkbps switches=%d stalls=%d (%.3fs) buffer p10/p50/p90=%.2f/%.2f/%.2fs score=%.2f",
		s.Frames, s.StartupDelay, s.MeanBitrateKbps, s.Switches, s.StalledFrames, s.StalledSeconds,
		s.BufferP10, s.BufferP50, s.BufferP90, s.Score)
}
