// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

// BufferModel applies playback and completed downloads to a player's buffer
// while enforcing 0 <= level <= capacity.
//
// A download is applied in two phases so the playhead can observe the buffer
// at the instant a segment arrives:
//  1. Drain plays out the download time; the buffer cannot go negative and
//     a clamp marks the interval as stalled.
//  2. Deposit appends the segment; seconds above capacity are discarded.
type BufferModel struct {
	capacity float64
}

// NewBufferModel creates a buffer model with the given capacity in seconds.
func NewBufferModel(capacity float64) BufferModel {
	return BufferModel{capacity: capacity}
}

// Capacity returns the buffer capacity in seconds.
func (b BufferModel) Capacity() float64 {
	return b.capacity
}

// Drain plays out downloadTime seconds of buffered media in real time.
// Returns true if the buffer ran dry before the download finished.
// Before playback has started nothing is played and Drain returns false.
func (b BufferModel) Drain(s *PlayerState, downloadTime float64) bool {
	if !s.playing || downloadTime <= 0 {
		return false
	}
	if downloadTime > s.bufferLevel {
		s.rebufferTime += downloadTime - s.bufferLevel
		s.bufferLevel = 0
		return true
	}
	s.bufferLevel -= downloadTime
	return false
}

// Deposit appends segmentDuration seconds of media, starting playback if it
// had not started. Returns the seconds discarded at capacity.
func (b BufferModel) Deposit(s *PlayerState, segmentDuration float64) float64 {
	s.playing = true
	s.bufferLevel += segmentDuration
	if s.bufferLevel <= b.capacity {
		return 0
	}
	excess := s.bufferLevel - b.capacity
	s.bufferLevel = b.capacity
	return excess
}

// ApplyDownload drains downloadTime seconds and then deposits
// segmentDuration seconds in one step. Returns true if the buffer ran dry
// during the download.
func (b BufferModel) ApplyDownload(s *PlayerState, segmentDuration, downloadTime float64) bool {
	stalled := b.Drain(s, downloadTime)
	b.Deposit(s, segmentDuration)
	return stalled
}
