package traceio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/thesyncim/abrsim/pkg/abr"
)

// rtpdump framing, as written by rtpdump(1) and libwebrtc's rtp_file_writer.
const (
	rtpdumpMagic      = "#!rtpplay1.0"
	rtpdumpHeaderLen  = 16 // start sec, start usec, source, port, padding
	rtpdumpPacketHdr  = 8  // length, plen, offset
	maxRTPDumpPayload = math.MaxUint16 - rtpdumpPacketHdr
)

// ErrMalformedDump reports an rtpdump capture that cannot be framed.
var ErrMalformedDump = errors.New("malformed rtpdump")

// DumpPacket is one captured packet.
type DumpPacket struct {
	// Offset is the capture time relative to Dump.Start, at millisecond
	// resolution.
	Offset time.Duration

	// RTCP is set for packets the capture recorded with no RTP length.
	RTCP bool

	Data []byte
}

// Dump is a decoded rtpdump capture.
type Dump struct {
	// Source is the address/port from the first line.
	Source string

	Start   time.Time
	Packets []DumpPacket
}

// ReadRTPDump decodes an rtpdump capture.
func ReadRTPDump(r io.Reader) (*Dump, error) {
	br := bufio.NewReader(r)

	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: reading file header: %v", ErrMalformedDump, err)
	}
	line = strings.TrimRight(line, "\r\n")
	source, ok := strings.CutPrefix(line, rtpdumpMagic)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s header", ErrMalformedDump, rtpdumpMagic)
	}

	var hdr [rtpdumpHeaderLen]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading binary header: %v", ErrMalformedDump, err)
	}
	sec := binary.BigEndian.Uint32(hdr[0:4])
	usec := binary.BigEndian.Uint32(hdr[4:8])

	dump := &Dump{
		Source: strings.TrimSpace(source),
		Start:  time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)).UTC(),
	}

	for i := 0; ; i++ {
		var ph [rtpdumpPacketHdr]byte
		_, err := io.ReadFull(br, ph[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: packet %d header: %v", ErrMalformedDump, i, err)
		}
		length := binary.BigEndian.Uint16(ph[0:2])
		plen := binary.BigEndian.Uint16(ph[2:4])
		offset := binary.BigEndian.Uint32(ph[4:8])
		if length < rtpdumpPacketHdr {
			return nil, fmt.Errorf("%w: packet %d length %d", ErrMalformedDump, i, length)
		}

		data := make([]byte, length-rtpdumpPacketHdr)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("%w: packet %d body: %v", ErrMalformedDump, i, err)
		}
		dump.Packets = append(dump.Packets, DumpPacket{
			Offset: time.Duration(offset) * time.Millisecond,
			RTCP:   plen == 0,
			Data:   data,
		})
	}
	return dump, nil
}

// WriteRTPDump encodes dump in rtpdump framing.
func WriteRTPDump(w io.Writer, dump *Dump) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\n", rtpdumpMagic, dump.Source)

	var hdr [rtpdumpHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(dump.Start.Unix()))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(dump.Start.Nanosecond()/int(time.Microsecond)))
	if ap, err := netip.ParseAddrPort(strings.Replace(dump.Source, "/", ":", 1)); err == nil && ap.Addr().Is4() {
		a4 := ap.Addr().As4()
		copy(hdr[8:12], a4[:])
		binary.BigEndian.PutUint16(hdr[12:14], ap.Port())
	}
	buf.Write(hdr[:])

	for i, p := range dump.Packets {
		if len(p.Data) > maxRTPDumpPayload {
			return fmt.Errorf("%w: packet %d is %d bytes", ErrMalformedDump, i, len(p.Data))
		}
		var ph [rtpdumpPacketHdr]byte
		binary.BigEndian.PutUint16(ph[0:2], uint16(len(p.Data)+rtpdumpPacketHdr))
		if !p.RTCP {
			binary.BigEndian.PutUint16(ph[2:4], uint16(len(p.Data)))
		}
		binary.BigEndian.PutUint32(ph[4:8], uint32(p.Offset/time.Millisecond))
		buf.Write(ph[:])
		buf.Write(p.Data)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// DefaultRateWindow is the bin width used to turn packet captures into
// throughput samples.
const DefaultRateWindow = 500 * time.Millisecond

// DefaultREMBHold is how long the last REMB estimate of a capture is held
// when it is converted with SourceREMB.
const DefaultREMBHold = time.Second

// MinThroughputKbps is substituted for capture windows in which nothing was
// received, since trace throughput must stay positive.
const MinThroughputKbps = 1.0

// RTPRateTrace bins the RTP packets of dump into windows and converts the
// received bytes of each window into kbps. RTCP packets are ignored and RTP
// packets that fail to parse are an error.
func RTPRateTrace(dump *Dump, window time.Duration) (*abr.BandwidthTrace, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: rate window %v", abr.ErrInvalidTrace, window)
	}

	var (
		bins []int
		pkt  rtp.Packet
	)
	for i, p := range dump.Packets {
		if p.RTCP {
			continue
		}
		if err := pkt.Unmarshal(p.Data); err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		bin := int(p.Offset / window)
		for len(bins) <= bin {
			bins = append(bins, 0)
		}
		bins[bin] += len(p.Data)
	}
	if len(bins) == 0 {
		return nil, fmt.Errorf("%w: capture has no RTP packets", abr.ErrEmptyTrace)
	}

	secs := window.Seconds()
	samples := make([]abr.Sample, 0, len(bins)+1)
	for i, n := range bins {
		kbps := float64(n) * 8 / 1000 / secs
		samples = append(samples, abr.Sample{
			Time:           float64(i) * secs,
			ThroughputKbps: max(kbps, MinThroughputKbps),
		})
	}
	last := samples[len(samples)-1]
	samples = append(samples, abr.Sample{Time: float64(len(bins)) * secs, ThroughputKbps: last.ThroughputKbps})
	return abr.NewBandwidthTrace(samples)
}

// REMBTrace converts the REMB feedback in dump into a trace: each estimate
// holds until the next one. Coverage ends hold after the last estimate.
func REMBTrace(dump *Dump, hold time.Duration) (*abr.BandwidthTrace, error) {
	if hold <= 0 {
		return nil, fmt.Errorf("%w: hold %v", abr.ErrInvalidTrace, hold)
	}

	var samples []abr.Sample
	for i, p := range dump.Packets {
		if !p.RTCP {
			continue
		}
		pkts, err := rtcp.Unmarshal(p.Data)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		for _, pkt := range pkts {
			remb, ok := pkt.(*rtcp.ReceiverEstimatedMaximumBitrate)
			if !ok || remb.Bitrate <= 0 {
				continue
			}
			samples = append(samples, abr.Sample{
				Time:           p.Offset.Seconds(),
				ThroughputKbps: float64(remb.Bitrate) / 1000,
			})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: capture has no REMB feedback", abr.ErrEmptyTrace)
	}

	last := samples[len(samples)-1]
	samples = append(samples, abr.Sample{Time: last.Time + hold.Seconds(), ThroughputKbps: last.ThroughputKbps})
	return abr.NewBandwidthTrace(samples)
}

// BuildREMB creates a marshaled REMB packet carrying bitrateBps for the
// given media SSRCs. The bitrate is encoded with REMB's 6-bit exponent and
// 18-bit mantissa, so large values are rounded.
func BuildREMB(senderSSRC uint32, bitrateBps uint64, mediaSSRCs []uint32) ([]byte, error) {
	pkt := &rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: senderSSRC,
		Bitrate:    float32(bitrateBps),
		SSRCs:      mediaSSRCs,
	}
	return pkt.Marshal()
}
