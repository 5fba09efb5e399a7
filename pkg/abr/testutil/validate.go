// Package testutil provides testing utilities for the abr package: frame
// invariant checks, deterministic random configurations and traces, named
// network scenarios and golden-run files.
//
// Note: this package imports abr, so abr's own tests cannot import it.
package testutil

import (
	"fmt"
	"math"

	"github.com/thesyncim/abrsim/pkg/abr"
)

// ViolationKind classifies a broken frame invariant.
type ViolationKind int

const (
	// BufferOutOfRange means a buffer level fell outside [0, BufferSizeMax].
	BufferOutOfRange ViolationKind = iota
	// TimestampRegressed means a timestamp was below its predecessor.
	TimestampRegressed
	// StallMismatch means the stalled flag disagrees with the buffer level.
	StallMismatch
	// UnknownBitrate means a frame bitrate is not a ladder rung.
	UnknownBitrate
	// NonFinite means a frame carries NaN or Inf.
	NonFinite
)

// String returns a string representation of the ViolationKind.
func (k ViolationKind) String() string {
	switch k {
	case BufferOutOfRange:
		return "BufferOutOfRange"
	case TimestampRegressed:
		return "TimestampRegressed"
	case StallMismatch:
		return "StallMismatch"
	case UnknownBitrate:
		return "UnknownBitrate"
	case NonFinite:
		return "NonFinite"
	default:
		return "Unknown"
	}
}

// Violation is one broken invariant on one frame.
type Violation struct {
	Frame  int
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("frame %d: %s: %s", v.Frame, v.Kind, v.Detail)
}

// ValidateFrames checks every per-frame invariant of a run made with cfg and
// returns the violations in frame order. A valid run returns nil.
func ValidateFrames(frames []abr.Frame, cfg abr.SimulationConfig) []Violation {
	var out []Violation
	add := func(i int, k ViolationKind, format string, args ...any) {
		out = append(out, Violation{Frame: i, Kind: k, Detail: fmt.Sprintf(format, args...)})
	}

	ladder := cfg.Ladder()
	prev := 0.0
	for i, f := range frames {
		if !finite(f.Timestamp) || !finite(f.BitrateKbps) || !finite(f.BufferLevelSecs) {
			add(i, NonFinite, "%+v", f)
			continue
		}
		if f.BufferLevelSecs < 0 || f.BufferLevelSecs > cfg.BufferSizeMax {
			add(i, BufferOutOfRange, "buffer %v outside [0, %v]", f.BufferLevelSecs, cfg.BufferSizeMax)
		}
		if f.Timestamp < prev {
			add(i, TimestampRegressed, "timestamp %v after %v", f.Timestamp, prev)
		}
		if want := f.BufferLevelSecs <= cfg.StallThreshold; f.Stalled != want {
			add(i, StallMismatch, "stalled=%t with buffer %v and threshold %v", f.Stalled, f.BufferLevelSecs, cfg.StallThreshold)
		}
		if ladder.Index(f.BitrateKbps) < 0 {
			add(i, UnknownBitrate, "bitrate %v not in ladder %v", f.BitrateKbps, ladder.Bitrates())
		}
		prev = f.Timestamp
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
