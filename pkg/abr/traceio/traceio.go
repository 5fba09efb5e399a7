// Package traceio reads and writes bandwidth traces.
//
// Supported inputs:
//   - JSON documents ({"name": ..., "samples": [{"time": ..., "throughput_kbps": ...}]})
//   - CSV with a time_s,throughput_kbps header
//   - whitespace-separated text with '#' or '%' comments
//   - rtpdump captures, converted by RTP byte rate or by REMB estimates
package traceio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/thesyncim/abrsim/pkg/abr"
)

// Document is the JSON form of a bandwidth trace.
type Document struct {
	Name    string       `json:"name,omitempty"`
	Samples []abr.Sample `json:"samples"`
}

// ReadJSON decodes a Document and builds a trace from it.
func ReadJSON(r io.Reader) (*abr.BandwidthTrace, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode trace document: %w", err)
	}
	return abr.NewBandwidthTrace(doc.Samples)
}

// WriteJSON encodes trace as an indented Document.
func WriteJSON(w io.Writer, name string, trace *abr.BandwidthTrace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Name: name, Samples: trace.Samples()})
}

// Source selects how an rtpdump capture is converted into a trace.
type Source string

const (
	// SourceRate bins received RTP bytes with RTPRateTrace.
	SourceRate Source = "rate"
	// SourceREMB follows the capture's REMB estimates with REMBTrace.
	SourceREMB Source = "remb"
)

// ErrUnknownSource reports a Source name other than rate or remb.
var ErrUnknownSource = errors.New("unknown trace source")

// ParseSource maps a source name onto a Source. The empty name selects
// SourceRate.
func ParseSource(name string) (Source, error) {
	switch Source(strings.ToLower(name)) {
	case "", SourceRate:
		return SourceRate, nil
	case SourceREMB:
		return SourceREMB, nil
	default:
		return "", fmt.Errorf("%w: %q (rate, remb)", ErrUnknownSource, name)
	}
}

// ReadFile reads a trace file, picking the format from its extension:
// .json, .csv, .rtpdump / .rtp (RTP byte rate), anything else as text.
func ReadFile(path string) (*abr.BandwidthTrace, error) {
	return ReadFileAs(path, SourceRate)
}

// ReadFileAs is ReadFile with an explicit conversion for rtpdump captures.
// SourceREMB is only valid for captures.
func ReadFileAs(path string, src Source) (*abr.BandwidthTrace, error) {
	ext := strings.ToLower(filepath.Ext(path))
	capture := ext == ".rtpdump" || ext == ".rtp"
	switch {
	case src != SourceRate && src != SourceREMB:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	case src == SourceREMB && !capture:
		return nil, fmt.Errorf("%s: %w: remb needs an rtpdump capture", path, ErrUnknownSource)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	var trace *abr.BandwidthTrace
	switch {
	case capture:
		var dump *Dump
		dump, err = ReadRTPDump(f)
		if err != nil {
			break
		}
		if src == SourceREMB {
			trace, err = REMBTrace(dump, DefaultREMBHold)
		} else {
			trace, err = RTPRateTrace(dump, DefaultRateWindow)
		}
	case ext == ".json":
		trace, err = ReadJSON(f)
	case ext == ".csv":
		trace, err = ReadCSV(f)
	default:
		trace, err = ReadText(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return trace, nil
}

// WriteFile writes trace to path as JSON or CSV depending on the extension.
func WriteFile(path string, trace *abr.BandwidthTrace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = WriteCSV(f, trace)
	default:
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		err = WriteJSON(f, name, trace)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
