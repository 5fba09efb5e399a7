package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thesyncim/abrsim/pkg/abr"
)

var (
	outputPath   string
	outputFormat string
	breakdown    bool
)

// runCmd simulates one configuration and writes the frame telemetry.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate playback and write per-segment frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, trace, err := resolve(cmd)
		setupLogging()
		if err != nil {
			return err
		}

		out, closeOut, err := openOutput(cmd.OutOrStdout(), outputPath)
		if err != nil {
			return err
		}
		defer closeOut()

		sim, err := abr.NewSimulator(cfg, trace, newEngineLogger("abr"))
		if err != nil {
			return err
		}
		logrus.Infof("Starting %s run: window=%d buffer=%.2fs segment=%.2fs threshold=%.2fs trace=%.1fs",
			cfg.Algorithm, cfg.WindowSize, cfg.BufferSizeMax, cfg.SegmentDuration, cfg.StallThreshold, trace.Duration())

		var frames []abr.Frame
		switch outputFormat {
		case "csv":
			frames, err = runCSV(sim, out)
		case "json":
			frames, err = sim.Run()
			if err == nil {
				err = writeJSON(out, frames)
			}
		default:
			return fmt.Errorf("unknown format %q (json, csv)", outputFormat)
		}
		if err != nil {
			return err
		}

		logrus.Info(abr.Summarize(frames, sim.Ladder()).String())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output file (default stdout)")
	runCmd.Flags().StringVar(&outputFormat, "format", "json", "Output format (json, csv)")
}

// runCSV streams frames as CSV rows while the simulation runs. Rows stop
// at the first write error, which is returned once the run ends.
func runCSV(sim *abr.Simulator, out io.Writer) ([]abr.Frame, error) {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"timestamp", "bitrate_kbps", "buffer_level_secs", "stalled"}); err != nil {
		return nil, err
	}
	var werr error
	sim.SetFrameCallback(func(f abr.Frame) {
		if werr != nil {
			return
		}
		werr = w.Write([]string{
			strconv.FormatFloat(f.Timestamp, 'f', 6, 64),
			strconv.FormatFloat(f.BitrateKbps, 'f', -1, 64),
			strconv.FormatFloat(f.BufferLevelSecs, 'f', 6, 64),
			strconv.FormatBool(f.Stalled),
		})
		if werr != nil {
			logrus.Errorf("CSV output failed at t=%.3fs: %v", f.Timestamp, werr)
		}
	})
	defer sim.SetFrameCallback(nil)

	frames, err := sim.Run()
	if err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, fmt.Errorf("failed to write frames: %w", werr)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write frames: %w", err)
	}
	return frames, nil
}

func writeJSON(out io.Writer, frames []abr.Frame) error {
	data, err := abr.MarshalFrames(frames)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			logrus.Errorf("Failed to close %s: %v", path, err)
		}
	}, nil
}

// scoreCmd simulates one configuration and prints only the QoE score.
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Simulate playback and print the QoE score",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, trace, err := resolve(cmd)
		setupLogging()
		if err != nil {
			return err
		}

		if !breakdown {
			score, err := abr.RunToScore(cfg, trace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", score)
			return nil
		}

		frames, err := abr.RunToTrace(cfg, trace)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(abr.ScoreFrames(frames, cfg.Ladder()))
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&breakdown, "breakdown", false, "Print the score components as JSON")
}
