// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import (
	"fmt"
	"slices"
)

// DefaultBitrates is the default encoding ladder in kbps.
var DefaultBitrates = []float64{300, 750, 1200, 1850, 2850, 4300}

// Ladder is the encoding definition: the segment duration and the ordered
// set of bitrates a segment can be fetched at.
// A Ladder is read-only once constructed and may be shared across runs.
type Ladder struct {
	segmentDuration float64
	bitrates        []float64
}

// NewLadder creates a ladder from a segment duration in seconds and a set of
// rungs in kbps. Rungs are sorted ascending; duplicates and non-positive
// rungs are rejected with ErrInvalidConfig.
func NewLadder(segmentDuration float64, bitrates []float64) (Ladder, error) {
	if !finite(segmentDuration) || segmentDuration <= 0 {
		return Ladder{}, fmt.Errorf("%w: segment duration must be > 0, got %v", ErrInvalidConfig, segmentDuration)
	}
	if len(bitrates) == 0 {
		return Ladder{}, fmt.Errorf("%w: ladder needs at least one bitrate", ErrInvalidConfig)
	}

	rates := slices.Clone(bitrates)
	slices.Sort(rates)
	for i, r := range rates {
		if !finite(r) || r <= 0 {
			return Ladder{}, fmt.Errorf("%w: ladder bitrate must be > 0, got %v", ErrInvalidConfig, r)
		}
		if i > 0 && r == rates[i-1] {
			return Ladder{}, fmt.Errorf("%w: duplicate ladder bitrate %v", ErrInvalidConfig, r)
		}
	}

	return Ladder{segmentDuration: segmentDuration, bitrates: rates}, nil
}

// SegmentDuration returns the segment duration in seconds.
func (l Ladder) SegmentDuration() float64 {
	return l.segmentDuration
}

// Bitrates returns a copy of the rungs in ascending order.
func (l Ladder) Bitrates() []float64 {
	return slices.Clone(l.bitrates)
}

// Len returns the number of rungs.
func (l Ladder) Len() int {
	return len(l.bitrates)
}

// Lowest returns the lowest rung.
func (l Ladder) Lowest() float64 {
	return l.bitrates[0]
}

// Highest returns the highest rung.
func (l Ladder) Highest() float64 {
	return l.bitrates[len(l.bitrates)-1]
}

// Rung returns the i-th rung, lowest first.
func (l Ladder) Rung(i int) float64 {
	return l.bitrates[i]
}

// Floor returns the highest rung at or below kbps.
// If every rung is above kbps, the lowest rung is returned.
func (l Ladder) Floor(kbps float64) float64 {
	i, found := slices.BinarySearch(l.bitrates, kbps)
	if found {
		return l.bitrates[i]
	}
	if i == 0 {
		return l.bitrates[0]
	}
	return l.bitrates[i-1]
}

// Index returns the position of the rung equal to kbps, or -1.
func (l Ladder) Index(kbps float64) int {
	i, found := slices.BinarySearch(l.bitrates, kbps)
	if !found {
		return -1
	}
	return i
}

// SegmentKilobits returns the size of one segment encoded at kbps.
func (l Ladder) SegmentKilobits(kbps float64) float64 {
	return kbps * l.segmentDuration
}
