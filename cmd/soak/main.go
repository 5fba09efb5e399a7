// Soak runner for long-duration randomized simulation testing.
//
// This tool first runs every algorithm over the standard scenario set, then
// over an endless stream of seeded random configurations and traces,
// checking frame invariants, run determinism and score bounds, while
// monitoring heap growth.
//
// Usage:
//
//	go run ./cmd/soak -duration 1h
//	go run ./cmd/soak -duration 10m -seed 42
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/abrsim/pkg/abr"
	"github.com/thesyncim/abrsim/pkg/abr/testutil"
)

const (
	traceSeconds   = 300
	statusInterval = 30 * time.Second
	heapLimitMB    = 100
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration      time.Duration
	Runs          int
	Frames        int
	StalledFrames int
	MinScore      float64
	MaxScore      float64
	PeakHeapMB    float64
	TotalGCCycles uint32
	Violations    int
	Mismatches    int
	Status        string
}

func main() {
	duration := flag.Duration("duration", time.Hour, "Test duration (e.g., 10m, 1h)")
	seed := flag.Int64("seed", 1, "First seed; each run uses the next one")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	level := flag.String("log", "info", "Log level")
	flag.Parse()

	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", *level)
	}
	logrus.SetLevel(lvl)

	fmt.Printf("ABR Soak Test Runner\n")
	fmt.Printf("====================\n")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Seed:     %d\n", *seed)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logrus.Warnf("pprof server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := runSoakTest(ctx, *duration, *seed)

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoakTest(ctx context.Context, duration time.Duration, seed int64) SoakResult {
	result := SoakResult{
		Status:   "PASS",
		MinScore: math.Inf(1),
		MaxScore: math.Inf(-1),
	}

	var memStats runtime.MemStats
	startTime := time.Now()
	lastStatusTime := startTime

	logrus.Infof("[%s] Starting soak test...", formatDuration(0))
	soakScenarios(&result)

	for ; ; seed++ {
		if ctx.Err() != nil {
			result.Duration = time.Since(startTime)
			return result
		}
		elapsed := time.Since(startTime)
		if elapsed >= duration {
			result.Duration = elapsed
			return result
		}

		soakOnce(seed, elapsed, &result)

		if time.Since(lastStatusTime) >= statusInterval {
			lastStatusTime = time.Now()
			runtime.ReadMemStats(&memStats)

			heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
			if heapMB > result.PeakHeapMB {
				result.PeakHeapMB = heapMB
			}
			result.TotalGCCycles = memStats.NumGC

			logrus.Infof("[%s] Runs: %d, Frames: %d, Score: [%.2f, %.2f], HeapAlloc: %.2f MB, NumGC: %d",
				formatDuration(elapsed),
				result.Runs,
				result.Frames,
				result.MinScore,
				result.MaxScore,
				heapMB,
				memStats.NumGC)

			if heapMB > heapLimitMB {
				logrus.Errorf("[%s] Memory limit exceeded: %.2f MB", formatDuration(elapsed), heapMB)
				result.Status = "FAIL"
			}
		}
	}
}

// soakScenarios checks every algorithm against the standard scenarios.
func soakScenarios(result *SoakResult) {
	for _, sc := range testutil.Scenarios() {
		for _, algo := range abr.Algorithms() {
			cfg := abr.DefaultSimulationConfig()
			cfg.Algorithm = algo
			check(fmt.Sprintf("%s/%s", sc.Name, algo), cfg, sc.Trace, result)
		}
	}
	logrus.Infof("[%s] Scenarios done: %d runs, %d violations", formatDuration(0), result.Runs, result.Violations)
}

// soakOnce simulates one seeded configuration and checks the output.
func soakOnce(seed int64, elapsed time.Duration, result *SoakResult) {
	cfg := testutil.RandomConfig(seed)
	trace := testutil.RandomTrace(seed, traceSeconds)
	check(fmt.Sprintf("[%s] seed %d", formatDuration(elapsed), seed), cfg, trace, result)
}

// check runs cfg over trace twice and records invariant violations, rerun
// mismatches and the score.
func check(label string, cfg abr.SimulationConfig, trace *abr.BandwidthTrace, result *SoakResult) {
	sim, err := abr.NewSimulator(cfg, trace, nil)
	if err != nil {
		logrus.Errorf("%s: %v", label, err)
		result.Status = "FAIL"
		return
	}
	frames, err := sim.Run()
	if err != nil {
		logrus.Errorf("%s: run failed: %v", label, err)
		result.Status = "FAIL"
		return
	}
	result.Runs++
	result.Frames += len(frames)

	for _, v := range testutil.ValidateFrames(frames, cfg) {
		logrus.Errorf("%s: %s", label, v)
		result.Violations++
		result.Status = "FAIL"
	}

	again, err := sim.Run()
	if err != nil || !slices.Equal(frames, again) {
		logrus.Errorf("%s: rerun diverged", label)
		result.Mismatches++
		result.Status = "FAIL"
	}

	s := abr.Summarize(frames, sim.Ladder())
	result.StalledFrames += s.StalledFrames
	if s.Score < 0 || s.Score > abr.MaxScore || math.IsNaN(s.Score) {
		logrus.Errorf("%s: score out of range: %v", label, s.Score)
		result.Violations++
		result.Status = "FAIL"
	}
	result.MinScore = min(result.MinScore, s.Score)
	result.MaxScore = max(result.MaxScore, s.Score)
	logrus.Debugf("%s %s: %s", label, cfg.Algorithm, s)
}

func printSummary(result SoakResult) {
	if result.Runs == 0 {
		result.MinScore, result.MaxScore = 0, 0
	}
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Runs:              %d\n", result.Runs)
	fmt.Printf("Frames:            %d\n", result.Frames)
	fmt.Printf("Stalled frames:    %d\n", result.StalledFrames)
	fmt.Printf("Score range:       %.2f .. %.2f\n", result.MinScore, result.MaxScore)
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Violations:        %d\n", result.Violations)
	fmt.Printf("Rerun mismatches:  %d\n", result.Mismatches)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:            %s\n", checkMark(true))
	fmt.Printf("  - Frame invariants:     %s\n", checkMark(result.Violations == 0))
	fmt.Printf("  - Deterministic reruns: %s\n", checkMark(result.Mismatches == 0))
	fmt.Printf("  - Peak memory < %d MB: %s\n", heapLimitMB, checkMark(result.PeakHeapMB < heapLimitMB))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
