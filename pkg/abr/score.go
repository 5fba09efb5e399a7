// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

// QoE weight table. The score is
//
//	100 * (WeightBitrate*normalizedBitrate
//	     - WeightSwitch*switchRate
//	     - WeightStalledFrames*stalledFraction
//	     - WeightStalledTime*stalledTimeFraction)
//
// clamped to [0, 100]. A stalled frame always costs more than a switch.
const (
	WeightBitrate       = 1.00
	WeightSwitch        = 0.10
	WeightStalledFrames = 0.45
	WeightStalledTime   = 0.45
)

// MaxScore is the score of a run at the highest rung with no switches and no
// stalls.
const MaxScore = 100.0

// ScoreBreakdown exposes the aggregates a score is computed from.
type ScoreBreakdown struct {
	Frames int `json:"frames"`

	// MeanBitrateKbps is the average frame bitrate; NormalizedBitrate divides
	// it by the ladder's highest rung.
	MeanBitrateKbps   float64 `json:"mean_bitrate_kbps"`
	NormalizedBitrate float64 `json:"normalized_bitrate"`

	// Switches counts bitrate changes between consecutive frames;
	// SwitchRate divides by the frame count.
	Switches   int     `json:"switches"`
	SwitchRate float64 `json:"switch_rate"`

	StalledFrames   int     `json:"stalled_frames"`
	StalledFraction float64 `json:"stalled_fraction"`

	// StalledSeconds sums the inter-arrival interval ending at each stalled
	// frame. StalledTimeFraction divides it by the last frame's timestamp.
	StalledSeconds      float64 `json:"stalled_seconds"`
	StalledTimeFraction float64 `json:"stalled_time_fraction"`

	Score float64 `json:"score"`
}

// ScoreFrames computes the QoE breakdown of frames against ladder.
// An empty sequence scores 0.
func ScoreFrames(frames []Frame, ladder Ladder) ScoreBreakdown {
	b := ScoreBreakdown{Frames: len(frames)}
	if len(frames) == 0 {
		return b
	}

	var (
		bitrateSum float64
		prevTS     float64
	)
	for i, f := range frames {
		bitrateSum += f.BitrateKbps
		if i > 0 && f.BitrateKbps != frames[i-1].BitrateKbps {
			b.Switches++
		}
		if f.Stalled {
			b.StalledFrames++
			b.StalledSeconds += f.Timestamp - prevTS
		}
		prevTS = f.Timestamp
	}

	n := float64(len(frames))
	b.MeanBitrateKbps = bitrateSum / n
	b.NormalizedBitrate = min(b.MeanBitrateKbps/ladder.Highest(), 1)
	b.SwitchRate = float64(b.Switches) / n
	b.StalledFraction = float64(b.StalledFrames) / n

	runLength := frames[len(frames)-1].Timestamp
	switch {
	case runLength > 0:
		b.StalledTimeFraction = min(b.StalledSeconds/runLength, 1)
	case b.StalledFrames > 0:
		b.StalledTimeFraction = b.StalledFraction
	}

	raw := WeightBitrate*b.NormalizedBitrate -
		WeightSwitch*b.SwitchRate -
		WeightStalledFrames*b.StalledFraction -
		WeightStalledTime*b.StalledTimeFraction
	b.Score = min(max(MaxScore*raw, 0), MaxScore)
	return b
}

// Score returns the QoE score of frames in [0, 100].
func Score(frames []Frame, ladder Ladder) float64 {
	return ScoreFrames(frames, ladder).Score
}
