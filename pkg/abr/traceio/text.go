package traceio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/thesyncim/abrsim/pkg/abr"
)

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{"time_s", "throughput_kbps"}

// ReadCSV parses time_s,throughput_kbps rows. A header row is optional.
func ReadCSV(r io.Reader) (*abr.BandwidthTrace, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var samples []abr.Sample
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv: %w", err)
		}
		if row == 1 && rec[0] == CSVHeader[0] {
			continue
		}
		s, err := parseSample(rec[0], rec[1])
		if err != nil {
			return nil, fmt.Errorf("error at row %d: %w", row, err)
		}
		samples = append(samples, s)
	}
	return abr.NewBandwidthTrace(samples)
}

// WriteCSV writes trace with a header row.
func WriteCSV(w io.Writer, trace *abr.BandwidthTrace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range trace.Samples() {
		rec := []string{
			strconv.FormatFloat(s.Time, 'f', -1, 64),
			strconv.FormatFloat(s.ThroughputKbps, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadText parses lines of "time throughput_kbps". Text after '#' or '%' is
// a comment and blank lines are skipped.
func ReadText(r io.Reader) (*abr.BandwidthTrace, error) {
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	var samples []abr.Sample
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()

		if idx := strings.IndexAny(line, "#%"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("error at line %d: expected 2 fields, got %d", lineNumber, len(fields))
		}
		s, err := parseSample(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("error at line %d: %w", lineNumber, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading trace: %w", err)
	}
	return abr.NewBandwidthTrace(samples)
}

func parseSample(ts, kbps string) (abr.Sample, error) {
	t, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
	if err != nil {
		return abr.Sample{}, fmt.Errorf("invalid time: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(kbps), 64)
	if err != nil {
		return abr.Sample{}, fmt.Errorf("invalid throughput: %w", err)
	}
	return abr.Sample{Time: t, ThroughputKbps: v}, nil
}
