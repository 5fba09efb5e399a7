package traceio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/abrsim/pkg/abr"
)

func phased(t *testing.T) *abr.BandwidthTrace {
	t.Helper()
	tr, err := abr.PhasedTrace(
		abr.Phase{Duration: 2.5, ThroughputKbps: 1200},
		abr.Phase{Duration: 4, ThroughputKbps: 350.75},
	)
	require.NoError(t, err)
	return tr
}

// =============================================================================
// JSON / CSV / text
// =============================================================================

func TestJSON_RoundTrip(t *testing.T) {
	tr := phased(t)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "phased", tr))
	assert.Contains(t, buf.String(), `"name": "phased"`)
	assert.Contains(t, buf.String(), `"throughput_kbps": 350.75`)

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, tr.Samples(), got.Samples())
}

func TestReadJSON_Errors(t *testing.T) {
	_, err := ReadJSON(strings.NewReader("{"))
	assert.Error(t, err)

	_, err = ReadJSON(strings.NewReader(`{"samples": [{"time": 0, "throughput_kbps": 100}]}`))
	assert.ErrorIs(t, err, abr.ErrEmptyTrace)

	_, err = ReadJSON(strings.NewReader(`{"samples": [{"time": 0, "throughput_kbps": 0}, {"time": 1, "throughput_kbps": 1}]}`))
	assert.ErrorIs(t, err, abr.ErrInvalidTrace)
}

func TestCSV_RoundTrip(t *testing.T) {
	tr := phased(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tr))
	assert.True(t, strings.HasPrefix(buf.String(), "time_s,throughput_kbps\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tr.Samples(), got.Samples())
}

func TestReadCSV_HeaderOptional(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("# capture\n0, 500\n1, 800\n2, 800\n"))
	require.NoError(t, err)
	assert.Equal(t, []abr.Sample{{Time: 0, ThroughputKbps: 500}, {Time: 1, ThroughputKbps: 800}, {Time: 2, ThroughputKbps: 800}}, got.Samples())
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad time", "time_s,throughput_kbps\nx,100\n1,100\n"},
		{"bad throughput", "0,abc\n1,100\n"},
		{"wrong field count", "0,100,7\n1,100,7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReadText(t *testing.T) {
	content := `% time | throughput (kbps)
0    2000
1.5  1800   # dip
3    2400
6    2400
`
	got, err := ReadText(strings.NewReader(content))
	require.NoError(t, err)

	expected := []abr.Sample{
		{Time: 0, ThroughputKbps: 2000},
		{Time: 1.5, ThroughputKbps: 1800},
		{Time: 3, ThroughputKbps: 2400},
		{Time: 6, ThroughputKbps: 2400},
	}
	assert.Equal(t, expected, got.Samples())
}

func TestReadText_Errors(t *testing.T) {
	_, err := ReadText(strings.NewReader("0 100\n1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadText(strings.NewReader("0 fast\n"))
	assert.Error(t, err)

	_, err = ReadText(strings.NewReader("# nothing\n"))
	assert.ErrorIs(t, err, abr.ErrEmptyTrace)
}

func TestReadFile_ByExtension(t *testing.T) {
	tr := phased(t)
	dir := t.TempDir()

	for _, name := range []string{"trace.json", "trace.csv"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, tr))

		got, err := ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, tr.Samples(), got.Samples(), name)
	}

	txt := filepath.Join(dir, "trace.txt")
	require.NoError(t, os.WriteFile(txt, []byte("0 100\n10 100\n"), 0o644))
	got, err := ReadFile(txt)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Duration())

	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

// =============================================================================
// rtpdump
// =============================================================================

func rtpPacket(t *testing.T, seq uint16, payload int) []byte {
	t.Helper()
	p := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 900,
			SSRC:           0x1234,
		},
		Payload: make([]byte, payload),
	}
	data, err := p.Marshal()
	require.NoError(t, err)
	return data
}

// captureDump builds a capture with a 1200-byte RTP packet every 10ms over
// [from, to) milliseconds.
func captureDump(t *testing.T, spans ...[2]int) *Dump {
	t.Helper()
	dump := &Dump{
		Source: "127.0.0.1/5004",
		Start:  time.Unix(1700000000, 250000000).UTC(),
	}
	var seq uint16
	for _, span := range spans {
		for ms := span[0]; ms < span[1]; ms += 10 {
			dump.Packets = append(dump.Packets, DumpPacket{
				Offset: time.Duration(ms) * time.Millisecond,
				Data:   rtpPacket(t, seq, 1188),
			})
			seq++
		}
	}
	return dump
}

func TestRTPDump_RoundTrip(t *testing.T) {
	dump := captureDump(t, [2]int{0, 100})
	remb, err := BuildREMB(1, 2_000_000, []uint32{0x1234})
	require.NoError(t, err)
	dump.Packets = append(dump.Packets, DumpPacket{Offset: 100 * time.Millisecond, RTCP: true, Data: remb})

	var buf bytes.Buffer
	require.NoError(t, WriteRTPDump(&buf, dump))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("#!rtpplay1.0 127.0.0.1/5004\n")))

	got, err := ReadRTPDump(&buf)
	require.NoError(t, err)
	assert.Equal(t, dump.Source, got.Source)
	assert.True(t, dump.Start.Equal(got.Start))
	assert.Equal(t, dump.Packets, got.Packets)
}

func TestReadRTPDump_Malformed(t *testing.T) {
	_, err := ReadRTPDump(strings.NewReader("#!rtpplay2.0 x\n"))
	assert.ErrorIs(t, err, ErrMalformedDump)

	_, err = ReadRTPDump(strings.NewReader("#!rtpplay1.0 x\nshort"))
	assert.ErrorIs(t, err, ErrMalformedDump)

	var buf bytes.Buffer
	require.NoError(t, WriteRTPDump(&buf, captureDump(t, [2]int{0, 20})))
	truncated := buf.Bytes()[:buf.Len()-10]
	_, err = ReadRTPDump(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrMalformedDump)
}

func TestRTPRateTrace(t *testing.T) {
	tr, err := RTPRateTrace(captureDump(t, [2]int{0, 2000}), DefaultRateWindow)
	require.NoError(t, err)

	// 50 packets of 1200 bytes per 500ms window.
	assert.Equal(t, 5, tr.Len())
	assert.Equal(t, 2.0, tr.End())
	for _, s := range tr.Samples() {
		assert.InDelta(t, 960.0, s.ThroughputKbps, 1e-9)
	}
}

func TestRTPRateTrace_Gaps(t *testing.T) {
	tr, err := RTPRateTrace(captureDump(t, [2]int{0, 500}, [2]int{1500, 2000}), DefaultRateWindow)
	require.NoError(t, err)

	assert.InDelta(t, 960.0, tr.At(0.25), 1e-9)
	assert.Equal(t, MinThroughputKbps, tr.At(0.75))
	assert.Equal(t, MinThroughputKbps, tr.At(1.25))
	assert.InDelta(t, 960.0, tr.At(1.75), 1e-9)
}

func TestRTPRateTrace_Errors(t *testing.T) {
	_, err := RTPRateTrace(captureDump(t, [2]int{0, 100}), 0)
	assert.ErrorIs(t, err, abr.ErrInvalidTrace)

	_, err = RTPRateTrace(&Dump{}, DefaultRateWindow)
	assert.ErrorIs(t, err, abr.ErrEmptyTrace)

	bad := &Dump{Packets: []DumpPacket{{Data: []byte{0x80}}}}
	_, err = RTPRateTrace(bad, DefaultRateWindow)
	assert.Error(t, err)
}

func TestREMBTrace(t *testing.T) {
	dump := captureDump(t, [2]int{0, 1500})
	for _, e := range []struct {
		at  time.Duration
		bps uint64
	}{
		{0, 2_000_000},
		{time.Second, 1_500_000},
	} {
		data, err := BuildREMB(1, e.bps, []uint32{0x1234})
		require.NoError(t, err)
		dump.Packets = append(dump.Packets, DumpPacket{Offset: e.at, RTCP: true, Data: data})
	}

	tr, err := REMBTrace(dump, 2*time.Second)
	require.NoError(t, err)

	expected := []abr.Sample{
		{Time: 0, ThroughputKbps: 2000},
		{Time: 1, ThroughputKbps: 1500},
		{Time: 3, ThroughputKbps: 1500},
	}
	assert.Equal(t, expected, tr.Samples())
}

func TestREMBTrace_NoFeedback(t *testing.T) {
	_, err := REMBTrace(captureDump(t, [2]int{0, 100}), time.Second)
	assert.ErrorIs(t, err, abr.ErrEmptyTrace)

	_, err = REMBTrace(&Dump{}, 0)
	assert.ErrorIs(t, err, abr.ErrInvalidTrace)
}

func TestRTPDump_SimulatesEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRTPDump(&buf, captureDump(t, [2]int{0, 30000})))

	path := filepath.Join(t.TempDir(), "capture.rtpdump")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	tr, err := ReadFile(path)
	require.NoError(t, err)

	cfg := abr.DefaultSimulationConfig()
	frames, err := abr.RunToTrace(cfg, tr)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	for _, f := range frames {
		assert.LessOrEqual(t, f.BitrateKbps, 750.0, "960 kbps link cannot sustain higher rungs")
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		name string
		want Source
	}{
		{"", SourceRate},
		{"rate", SourceRate},
		{"REMB", SourceREMB},
	}
	for _, tt := range tests {
		got, err := ParseSource(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseSource("twcc")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestReadFileAs_REMB(t *testing.T) {
	dump := captureDump(t, [2]int{0, 3000})
	for _, e := range []struct {
		at  time.Duration
		bps uint64
	}{
		{0, 2_000_000},
		{2 * time.Second, 500_000},
	} {
		data, err := BuildREMB(1, e.bps, []uint32{0x1234})
		require.NoError(t, err)
		dump.Packets = append(dump.Packets, DumpPacket{Offset: e.at, RTCP: true, Data: data})
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRTPDump(&buf, dump))
	path := filepath.Join(t.TempDir(), "capture.rtpdump")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	remb, err := ReadFileAs(path, SourceREMB)
	require.NoError(t, err)
	assert.Equal(t, []abr.Sample{
		{Time: 0, ThroughputKbps: 2000},
		{Time: 2, ThroughputKbps: 500},
		{Time: 2 + DefaultREMBHold.Seconds(), ThroughputKbps: 500},
	}, remb.Samples())

	rate, err := ReadFileAs(path, SourceRate)
	require.NoError(t, err)
	assert.InDelta(t, 960.0, rate.At(0), 1e-9, "rate source ignores REMB feedback")

	same, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rate.Samples(), same.Samples())
}

func TestReadFileAs_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, WriteFile(path, phased(t)))

	_, err := ReadFileAs(path, SourceREMB)
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = ReadFileAs(path, Source("twcc"))
	assert.ErrorIs(t, err, ErrUnknownSource)
}
