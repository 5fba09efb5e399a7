// Package abr implements an adaptive-bitrate (ABR) streaming playback
// simulator and Quality-of-Experience (QoE) scorer.
package abr

// MinDownloadTime is the floor applied to every simulated download, in
// seconds. It keeps observed throughput finite and guarantees the clock
// moves forward on every segment.
const MinDownloadTime = 1e-6

// SegmentDownload describes one simulated segment fetch.
type SegmentDownload struct {
	// BitrateKbps is the rung the segment was encoded at.
	BitrateKbps float64

	// Kilobits is the segment size.
	Kilobits float64

	// DownloadTime is the simulated wall-clock time of the fetch in seconds.
	DownloadTime float64

	// ThroughputKbps is the observed throughput: Kilobits / DownloadTime.
	ThroughputKbps float64
}

// TransferTime returns how long it takes to move kilobits over trace
// starting at start, without extending past end.
// Returns (0, false) if the transfer cannot complete within coverage.
//
// The trace is integrated piecewise: each sample's throughput holds until
// the next sample.
func TransferTime(trace *BandwidthTrace, start, kilobits, end float64) (float64, bool) {
	end = min(end, trace.End())
	t := start
	remaining := kilobits

	i := trace.index(t)
	if i < 0 {
		// Nothing is transferred before coverage begins.
		i = 0
		t = trace.Start()
	}

	for t < end && i < len(trace.samples)-1 {
		next := min(trace.samples[i+1].Time, end)
		if next <= t {
			i++
			continue
		}
		rate := trace.samples[i].ThroughputKbps
		capacity := rate * (next - t)
		if capacity >= remaining {
			return t + remaining/rate - start, true
		}
		remaining -= capacity
		t = next
		i++
	}
	return 0, false
}

// SimulateSegment fetches one segment of segmentDuration seconds encoded at
// bitrate over trace, starting at the player's current time.
//
// On success the clock advances by the download time and the observed
// throughput is pushed onto the player's throughput history. If the
// download cannot complete before end, the state is left untouched and
// SimulateSegment returns false.
func SimulateSegment(bitrate, segmentDuration float64, trace *BandwidthTrace, s *PlayerState, end float64) (SegmentDownload, bool) {
	kbits := bitrate * segmentDuration
	dt, ok := TransferTime(trace, s.CurrentTime(), kbits, end)
	if !ok {
		return SegmentDownload{}, false
	}
	dt = max(dt, MinDownloadTime)

	d := SegmentDownload{
		BitrateKbps:    bitrate,
		Kilobits:       kbits,
		DownloadTime:   dt,
		ThroughputKbps: kbits / dt,
	}
	s.clock.Advance(dt)
	s.history.Push(d.ThroughputKbps)
	return d, true
}
