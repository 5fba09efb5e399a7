package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/abrsim/pkg/abr"
	"github.com/thesyncim/abrsim/pkg/abr/traceio"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `
log_level: debug
simulation:
  algorithm: BufferBased
  window_size: 5
  buffer_size_max: 20
trace:
  phases:
    - duration: 10s
      capacity: 3000
    - duration: 5s
      capacity: 500
sweep:
  algorithms: [Hybrid]
  window_sizes: [2, 4]
  parallel: 2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "BufferBased", cfg.Simulation.Algorithm)
	require.NotNil(t, cfg.Simulation.WindowSize)
	assert.Equal(t, 5, *cfg.Simulation.WindowSize)
	require.NotNil(t, cfg.Simulation.BufferSizeMax)
	assert.Equal(t, 20.0, *cfg.Simulation.BufferSizeMax)
	assert.Nil(t, cfg.Simulation.SegmentDuration, "unset fields stay nil")

	require.Len(t, cfg.Trace.Phases, 2)
	assert.Equal(t, 10*time.Second, cfg.Trace.Phases[0].Duration)
	assert.Equal(t, 500.0, cfg.Trace.Phases[1].Capacity)

	assert.Equal(t, []string{"Hybrid"}, cfg.Sweep.Algorithms)
	assert.Equal(t, []int{2, 4}, cfg.Sweep.WindowSizes)
	assert.Equal(t, 2, cfg.Sweep.Parallel)
}

func TestLoadConfig_Errors(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("simulation: [nope"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestSweepGrid(t *testing.T) {
	saved := []any{sweepAlgorithms, sweepWindows, sweepBuffers}
	t.Cleanup(func() {
		sweepAlgorithms = saved[0].([]string)
		sweepWindows = saved[1].([]int)
		sweepBuffers = saved[2].([]float64)
	})

	base := abr.DefaultSimulationConfig()

	t.Run("file values", func(t *testing.T) {
		grid, err := sweepGrid(sweepCmd, SweepSection{
			Algorithms:  []string{"ThroughputBased", "Hybrid"},
			WindowSizes: []int{1, 3},
			BufferSizes: []float64{10, 30},
		}, base)
		require.NoError(t, err)
		require.Len(t, grid, 8)
		assert.Equal(t, abr.ThroughputBased, grid[0].Algorithm)
		assert.Equal(t, 1, grid[0].WindowSize)
		assert.Equal(t, 10.0, grid[0].BufferSizeMax)
		assert.Equal(t, abr.Hybrid, grid[7].Algorithm)
		assert.Equal(t, 3, grid[7].WindowSize)
		assert.Equal(t, 30.0, grid[7].BufferSizeMax)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := sweepGrid(sweepCmd, SweepSection{Algorithms: []string{"Oracle"}}, base)
		assert.ErrorIs(t, err, abr.ErrUnsupportedAlgorithm)
	})

	t.Run("invalid point", func(t *testing.T) {
		_, err := sweepGrid(sweepCmd, SweepSection{
			Algorithms:  []string{"Hybrid"},
			WindowSizes: []int{0},
		}, base)
		assert.ErrorIs(t, err, abr.ErrInvalidConfig)
	})
}

func TestRunSweep(t *testing.T) {
	trace, err := abr.ConstantTrace(20000, 60)
	require.NoError(t, err)

	var grid []abr.SimulationConfig
	for _, a := range abr.Algorithms() {
		cfg := abr.DefaultSimulationConfig()
		cfg.Algorithm = a
		grid = append(grid, cfg)
	}

	results, err := runSweep(context.Background(), grid, trace, 2)
	require.NoError(t, err)
	require.Len(t, results, len(grid))

	for i, r := range results {
		assert.Positive(t, r.Summary.Frames, r.Algorithm)
		cfg := abr.DefaultSimulationConfig()
		cfg.Algorithm, err = abr.ParseAlgorithmName(r.Algorithm)
		require.NoError(t, err)
		want, err := abr.RunToScore(cfg, trace)
		require.NoError(t, err)
		assert.Equal(t, want, r.Summary.Score, r.Algorithm)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Summary.Score, r.Summary.Score, "sorted by score")
		}
	}
}

func TestRunSweep_Canceled(t *testing.T) {
	trace, err := abr.ConstantTrace(20000, 60)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runSweep(ctx, []abr.SimulationConfig{abr.DefaultSimulationConfig()}, trace, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Command execution
// =============================================================================

// resetFlags restores scalar flags to their defaults so each execution
// starts clean. Slice flags keep their bound values; bitrates is cleared.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Changed = false
		if !strings.HasSuffix(f.Value.Type(), "Slice") {
			_ = f.Value.Set(f.DefValue)
		}
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
	bitrates = nil
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

const phasesConfig = `
simulation:
  algorithm: ThroughputBased
  window_size: 3
  buffer_size_max: 10
trace:
  phases:
    - duration: 4s
      capacity: 20000
    - duration: 3s
      capacity: 200
    - duration: 8s
      capacity: 20000
`

// phasesRun returns the config and trace phasesConfig describes.
func phasesRun(t *testing.T) (string, abr.SimulationConfig, *abr.BandwidthTrace) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(phasesConfig), 0o644))

	cfg := abr.DefaultSimulationConfig()
	cfg.Algorithm = abr.ThroughputBased
	tr, err := abr.PhasedTrace(
		abr.Phase{Duration: 4, ThroughputKbps: 20000},
		abr.Phase{Duration: 3, ThroughputKbps: 200},
		abr.Phase{Duration: 8, ThroughputKbps: 20000},
	)
	require.NoError(t, err)
	return path, cfg, tr
}

func TestRunCommand_JSON(t *testing.T) {
	path, cfg, tr := phasesRun(t)
	want, err := abr.RunToTrace(cfg, tr)
	require.NoError(t, err)

	out, err := execute(t, "run", "--config", path)
	require.NoError(t, err)

	got, err := abr.UnmarshalFrames([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRunCommand_CSV(t *testing.T) {
	path, cfg, tr := phasesRun(t)
	want, err := abr.RunToTrace(cfg, tr)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "frames.csv")
	_, err = execute(t, "run", "--config", path, "--format", "csv", "-o", outPath)
	require.NoError(t, err)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, len(want)+1)
	assert.Equal(t, []string{"timestamp", "bitrate_kbps", "buffer_level_secs", "stalled"}, rows[0])
	for i, f := range want {
		assert.Equal(t, fmt.Sprint(f.BitrateKbps), rows[i+1][1], "row %d", i+1)
		assert.Equal(t, fmt.Sprint(f.Stalled), rows[i+1][3], "row %d", i+1)
	}
}

func TestRunCommand_UnknownFormat(t *testing.T) {
	path, _, _ := phasesRun(t)
	_, err := execute(t, "run", "--config", path, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRunCSV_WriteError(t *testing.T) {
	tr, err := abr.ConstantTrace(20000, 600)
	require.NoError(t, err)
	sim, err := abr.NewSimulator(abr.DefaultSimulationConfig(), tr, nil)
	require.NoError(t, err)

	_, err = runCSV(sim, failingWriter{})
	assert.ErrorContains(t, err, "disk full")
}

func TestScoreCommand(t *testing.T) {
	path, cfg, tr := phasesRun(t)
	frames, err := abr.RunToTrace(cfg, tr)
	require.NoError(t, err)

	t.Run("score", func(t *testing.T) {
		out, err := execute(t, "score", "--config", path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%.4f\n", abr.Score(frames, cfg.Ladder())), out)
	})

	t.Run("breakdown", func(t *testing.T) {
		out, err := execute(t, "score", "--config", path, "--breakdown")
		require.NoError(t, err)

		var got abr.ScoreBreakdown
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, abr.ScoreFrames(frames, cfg.Ladder()), got)
		assert.Positive(t, got.StalledFrames, "the 200 kbps dip stalls playback")
	})
}

func TestScoreCommand_REMBSource(t *testing.T) {
	dump := &traceio.Dump{Source: "127.0.0.1/5004", Start: time.Unix(1700000000, 0).UTC()}
	for _, e := range []struct {
		at  time.Duration
		bps uint64
	}{
		{0, 20_000_000},
		{5 * time.Second, 500_000},
	} {
		data, err := traceio.BuildREMB(1, e.bps, []uint32{0x1234})
		require.NoError(t, err)
		dump.Packets = append(dump.Packets, traceio.DumpPacket{Offset: e.at, RTCP: true, Data: data})
	}
	var buf bytes.Buffer
	require.NoError(t, traceio.WriteRTPDump(&buf, dump))
	capture := filepath.Join(t.TempDir(), "feedback.rtpdump")
	require.NoError(t, os.WriteFile(capture, buf.Bytes(), 0o644))

	// REMB estimates held constant, the last one for DefaultREMBHold.
	tr, err := abr.PhasedTrace(
		abr.Phase{Duration: 5, ThroughputKbps: 20000},
		abr.Phase{Duration: traceio.DefaultREMBHold.Seconds(), ThroughputKbps: 500},
	)
	require.NoError(t, err)
	cfg := abr.DefaultSimulationConfig()
	want, err := abr.RunToScore(cfg, tr)
	require.NoError(t, err)

	out, err := execute(t, "score", "--trace", capture, "--trace-source", "remb")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%.4f\n", want), out)

	// The capture carries no RTP media, so the byte-rate conversion is empty.
	_, err = execute(t, "score", "--trace", capture, "--trace-source", "rate")
	assert.ErrorIs(t, err, abr.ErrEmptyTrace)

	_, err = execute(t, "score", "--trace", capture, "--trace-source", "twcc")
	assert.ErrorIs(t, err, traceio.ErrUnknownSource)
}

func TestLoadConfig_TraceSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trace:\n  file: feedback.rtpdump\n  source: remb\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "feedback.rtpdump", cfg.Trace.File)
	assert.Equal(t, "remb", cfg.Trace.Source)
}
