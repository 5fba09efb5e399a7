package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/abrsim/pkg/abr"
)

var (
	sweepAlgorithms []string
	sweepWindows    []int
	sweepBuffers    []float64
	sweepParallel   int
	sweepOut        string
)

// SweepResult is one grid point of a sweep.
type SweepResult struct {
	Algorithm     string      `yaml:"algorithm"`
	WindowSize    int         `yaml:"window_size"`
	BufferSizeMax float64     `yaml:"buffer_size_max"`
	Summary       abr.Summary `yaml:"summary"`
}

// sweepCmd runs every combination of the grid in parallel over one trace.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Score a grid of algorithms, windows and buffer sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, base, trace, err := resolve(cmd)
		setupLogging()
		if err != nil {
			return err
		}

		grid, err := sweepGrid(cmd, file.Sweep, base)
		if err != nil {
			return err
		}
		parallel := sweepParallel
		if file.Sweep.Parallel > 0 && !cmd.Flags().Changed("parallel") {
			parallel = file.Sweep.Parallel
		}
		logrus.Infof("Sweeping %d configurations with %d workers", len(grid), parallel)

		results, err := runSweep(cmd.Context(), grid, trace, parallel)
		if err != nil {
			return err
		}

		printSweep(results)
		if sweepOut != "" {
			data, err := yaml.Marshal(results)
			if err != nil {
				return err
			}
			if err := os.WriteFile(sweepOut, data, 0o644); err != nil {
				return fmt.Errorf("failed to write sweep results: %w", err)
			}
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringSliceVar(&sweepAlgorithms, "algorithms", []string{"ThroughputBased", "BufferBased", "Hybrid"}, "Algorithms to sweep")
	sweepCmd.Flags().IntSliceVar(&sweepWindows, "windows", []int{1, 3, 5, 10}, "Window sizes to sweep")
	sweepCmd.Flags().Float64SliceVar(&sweepBuffers, "buffers", nil, "Buffer sizes to sweep (default: --buffer)")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", runtime.GOMAXPROCS(0), "Concurrent simulations")
	sweepCmd.Flags().StringVar(&sweepOut, "results", "", "Write results as YAML to this file")
}

func sweepGrid(cmd *cobra.Command, s SweepSection, base abr.SimulationConfig) ([]abr.SimulationConfig, error) {
	changed := cmd.Flags().Changed
	if len(s.Algorithms) > 0 && !changed("algorithms") {
		sweepAlgorithms = s.Algorithms
	}
	if len(s.WindowSizes) > 0 && !changed("windows") {
		sweepWindows = s.WindowSizes
	}
	if len(s.BufferSizes) > 0 && !changed("buffers") {
		sweepBuffers = s.BufferSizes
	}
	buffers := sweepBuffers
	if len(buffers) == 0 {
		buffers = []float64{base.BufferSizeMax}
	}

	var grid []abr.SimulationConfig
	for _, name := range sweepAlgorithms {
		algo, err := abr.ParseAlgorithmName(name)
		if err != nil {
			return nil, err
		}
		for _, w := range sweepWindows {
			for _, b := range buffers {
				cfg := base
				cfg.Algorithm = algo
				cfg.WindowSize = w
				cfg.BufferSizeMax = b
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("sweep point %s/w=%d/buf=%v: %w", algo, w, b, err)
				}
				grid = append(grid, cfg)
			}
		}
	}
	return grid, nil
}

// runSweep simulates every configuration over the shared, read-only trace.
func runSweep(ctx context.Context, grid []abr.SimulationConfig, trace *abr.BandwidthTrace, parallel int) ([]SweepResult, error) {
	results := make([]SweepResult, len(grid))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))

	for i, cfg := range grid {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sim, err := abr.NewSimulator(cfg, trace, newEngineLogger("sweep"))
			if err != nil {
				return err
			}
			frames, err := sim.Run()
			if err != nil {
				return err
			}
			results[i] = SweepResult{
				Algorithm:     cfg.Algorithm.String(),
				WindowSize:    cfg.WindowSize,
				BufferSizeMax: cfg.BufferSizeMax,
				Summary:       abr.Summarize(frames, sim.Ladder()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b SweepResult) int {
		switch {
		case a.Summary.Score > b.Summary.Score:
			return -1
		case a.Summary.Score < b.Summary.Score:
			return 1
		}
		return 0
	})
	return results, nil
}

func printSweep(results []SweepResult) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tWINDOW\tBUFFER\tSCORE\tMEAN KBPS\tSWITCHES\tSTALLS\tSTALL SECS")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.2f\t%.0f\t%d\t%d\t%.2f\n",
			r.Algorithm, r.WindowSize, r.BufferSizeMax, s.Score, s.MeanBitrateKbps, s.Switches, s.StalledFrames, s.StalledSeconds)
	}
	tw.Flush()
}
