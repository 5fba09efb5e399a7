// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

import (
	"fmt"
	"slices"
	"sort"
)

// Sample is one bandwidth observation: from Time onwards, until the next
// sample, ThroughputKbps of download capacity is available.
type Sample struct {
	// Time is seconds since the start of the trace.
	Time float64 `json:"time"`

	// ThroughputKbps is the available capacity in kilobits per second.
	ThroughputKbps float64 `json:"throughput_kbps"`
}

// BandwidthTrace is an ordered, read-only sequence of bandwidth samples.
//
// Lookups hold each sample's throughput constant until the next sample.
// Coverage spans from the first sample's time to the last sample's time;
// the last sample only marks the end of coverage and its throughput is
// never used for a transfer. A trace may be shared by concurrent runs.
type BandwidthTrace struct {
	samples []Sample
}

// NewBandwidthTrace validates samples and builds a trace from a copy of them.
//
// Samples must have finite Time >= 0 in non-decreasing order and finite
// ThroughputKbps > 0, otherwise the error wraps ErrInvalidTrace. A trace
// that does not cover a positive duration fails with ErrEmptyTrace.
func NewBandwidthTrace(samples []Sample) (*BandwidthTrace, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: %d samples cover no duration", ErrEmptyTrace, len(samples))
	}
	for i, s := range samples {
		if !finite(s.Time) || s.Time < 0 {
			return nil, fmt.Errorf("%w: sample %d has time %v", ErrInvalidTrace, i, s.Time)
		}
		if !finite(s.ThroughputKbps) || s.ThroughputKbps <= 0 {
			return nil, fmt.Errorf("%w: sample %d has throughput %v", ErrInvalidTrace, i, s.ThroughputKbps)
		}
		if i > 0 && s.Time < samples[i-1].Time {
			return nil, fmt.Errorf("%w: sample %d at %v precedes sample %d at %v",
				ErrInvalidTrace, i, s.Time, i-1, samples[i-1].Time)
		}
	}
	if samples[len(samples)-1].Time <= samples[0].Time {
		return nil, fmt.Errorf("%w: all samples at t=%v", ErrEmptyTrace, samples[0].Time)
	}
	return &BandwidthTrace{samples: slices.Clone(samples)}, nil
}

// Start returns the time of the first sample.
func (t *BandwidthTrace) Start() float64 {
	return t.samples[0].Time
}

// End returns the time coverage ends.
func (t *BandwidthTrace) End() float64 {
	return t.samples[len(t.samples)-1].Time
}

// Duration returns the covered duration in seconds.
func (t *BandwidthTrace) Duration() float64 {
	return t.End() - t.Start()
}

// Len returns the number of samples.
func (t *BandwidthTrace) Len() int {
	return len(t.samples)
}

// Samples returns a copy of the samples.
func (t *BandwidthTrace) Samples() []Sample {
	return slices.Clone(t.samples)
}

// At returns the throughput in kbps available at time ts.
// Times before the first sample use the first sample.
func (t *BandwidthTrace) At(ts float64) float64 {
	i := t.index(ts)
	if i < 0 {
		i = 0
	}
	return t.samples[i].ThroughputKbps
}

// MeanThroughput returns the time-weighted mean throughput over coverage.
func (t *BandwidthTrace) MeanThroughput() float64 {
	var kbits float64
	for i := 0; i+1 < len(t.samples); i++ {
		kbits += t.samples[i].ThroughputKbps * (t.samples[i+1].Time - t.samples[i].Time)
	}
	return kbits / t.Duration()
}

// Truncate returns a trace whose coverage ends at end. Callers use it to cap
// a run's horizon without mutating a shared trace.
func (t *BandwidthTrace) Truncate(end float64) (*BandwidthTrace, error) {
	if end >= t.End() {
		return t, nil
	}
	out := make([]Sample, 0, len(t.samples))
	for _, s := range t.samples {
		if s.Time >= end {
			break
		}
		out = append(out, s)
	}
	out = append(out, Sample{Time: end, ThroughputKbps: t.At(end)})
	return NewBandwidthTrace(out)
}

// index returns the position of the last sample at or before ts, or -1.
func (t *BandwidthTrace) index(ts float64) int {
	return sort.Search(len(t.samples), func(i int) bool {
		return t.samples[i].Time > ts
	}) - 1
}
