// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

// ThroughputHistory keeps the most recent per-segment throughput
// observations, bounded by a fixed window size.
//
// Usage:
//
//	h := NewThroughputHistory(3)
//	h.Push(observedKbps)
//	if avg, ok := h.Mean(); ok {
//	    fmt.Printf("Moving average: %.0f kbps\n", avg)
//	}
type ThroughputHistory struct {
	windowSize int
	samples    []float64
	next       int // write position once the ring is full
}

// initialHistoryCap bounds the up-front allocation of a history. Larger
// windows grow by append; a run never fills more slots than it has segments.
const initialHistoryCap = 64

// NewThroughputHistory creates a history holding at most windowSize samples.
// A windowSize below 1 is treated as 1.
func NewThroughputHistory(windowSize int) *ThroughputHistory {
	if windowSize < 1 {
		windowSize = 1
	}
	return &ThroughputHistory{
		windowSize: windowSize,
		samples:    make([]float64, 0, min(windowSize, initialHistoryCap)),
	}
}

// Push records an observed throughput in kbps, evicting the oldest sample
// once the window is full.
func (h *ThroughputHistory) Push(kbps float64) {
	if len(h.samples) < h.windowSize {
		h.samples = append(h.samples, kbps)
		return
	}
	h.samples[h.next] = kbps
	h.next = (h.next + 1) % h.windowSize
}

// Mean returns the simple moving average of the retained samples.
// Returns (0, false) when no sample has been pushed.
func (h *ThroughputHistory) Mean() (float64, bool) {
	if len(h.samples) == 0 {
		return 0, false
	}
	var total float64
	for _, v := range h.Values() {
		total += v
	}
	return total / float64(len(h.samples)), true
}

// Len returns the number of retained samples.
func (h *ThroughputHistory) Len() int {
	return len(h.samples)
}

// WindowSize returns the maximum number of retained samples.
func (h *ThroughputHistory) WindowSize() int {
	return h.windowSize
}

// Values returns the retained samples, oldest first.
func (h *ThroughputHistory) Values() []float64 {
	out := make([]float64, 0, len(h.samples))
	if len(h.samples) < h.windowSize {
		return append(out, h.samples...)
	}
	out = append(out, h.samples[h.next:]...)
	return append(out, h.samples[:h.next]...)
}

// Last returns the most recent sample.
func (h *ThroughputHistory) Last() (float64, bool) {
	if len(h.samples) == 0 {
		return 0, false
	}
	if len(h.samples) < h.windowSize {
		return h.samples[len(h.samples)-1], true
	}
	return h.samples[(h.next+h.windowSize-1)%h.windowSize], true
}

// Reset clears all samples, keeping capacity.
func (h *ThroughputHistory) Reset() {
	h.samples = h.samples[:0]
	h.next = 0
}
