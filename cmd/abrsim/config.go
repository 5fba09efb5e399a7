package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/abrsim/pkg/abr"
	"github.com/thesyncim/abrsim/pkg/abr/traceio"
)

// Config is the YAML run file. Every field is optional; command-line flags
// override file values when they are set explicitly.
type Config struct {
	LogLevel   string            `yaml:"log_level"`
	Simulation SimulationSection `yaml:"simulation"`
	Trace      TraceSection      `yaml:"trace"`
	Sweep      SweepSection      `yaml:"sweep"`
}

// SimulationSection mirrors abr.SimulationConfig.
type SimulationSection struct {
	Algorithm       string    `yaml:"algorithm"`
	WindowSize      *int      `yaml:"window_size"`
	BufferSizeMax   *float64  `yaml:"buffer_size_max"`
	SegmentDuration *float64  `yaml:"segment_duration"`
	StallThreshold  *float64  `yaml:"stall_threshold"`
	Bitrates        []float64 `yaml:"bitrates"`
	MaxHorizon      *float64  `yaml:"max_horizon"`
}

// TraceSection selects the bandwidth trace. File wins over Phases, and
// Phases win over the seeded random walk. Source picks how an rtpdump
// File is converted (rate or remb).
type TraceSection struct {
	File   string        `yaml:"file"`
	Source string        `yaml:"source"`
	Phases []PhaseConfig `yaml:"phases"`
	Seed   *int64        `yaml:"seed"`
	Length time.Duration `yaml:"duration"`
}

// PhaseConfig is a span of constant capacity in kbps.
type PhaseConfig struct {
	Duration time.Duration `yaml:"duration"`
	Capacity float64       `yaml:"capacity"`
}

// SweepSection lists the parameter grid for the sweep command.
type SweepSection struct {
	Algorithms  []string  `yaml:"algorithms"`
	WindowSizes []int     `yaml:"window_sizes"`
	BufferSizes []float64 `yaml:"buffer_sizes"`
	Parallel    int       `yaml:"parallel"`
}

// LoadConfig reads a YAML run file. An empty path yields an empty Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// flag values shared by every command
var (
	configPath      string
	logLevel        string
	algorithmName   string
	windowSize      int
	bufferSizeMax   float64
	segmentDuration float64
	stallThreshold  float64
	maxHorizon      float64
	bitrates        []float64
	tracePath       string
	traceSource     string
	traceSeed       int64
	traceDuration   time.Duration
)

func registerSimulationFlags(cmd *cobra.Command) {
	def := abr.DefaultSimulationConfig()
	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML run file")
	flags.StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.StringVar(&algorithmName, "algorithm", def.Algorithm.String(), "Decision strategy (ThroughputBased, BufferBased, Hybrid)")
	flags.IntVar(&windowSize, "window", def.WindowSize, "Throughput history window in segments")
	flags.Float64Var(&bufferSizeMax, "buffer", def.BufferSizeMax, "Buffer capacity in seconds")
	flags.Float64Var(&segmentDuration, "segment", def.SegmentDuration, "Segment duration in seconds")
	flags.Float64Var(&stallThreshold, "threshold", def.StallThreshold, "Stall threshold in seconds")
	flags.Float64Var(&maxHorizon, "horizon", 0, "Maximum simulated seconds (0 runs the whole trace)")
	flags.Float64SliceVar(&bitrates, "bitrates", nil, "Comma-separated ladder in kbps (default 300..4300)")
	flags.StringVar(&tracePath, "trace", "", "Trace file (.json, .csv, .rtpdump or text)")
	flags.StringVar(&traceSource, "trace-source", string(traceio.SourceRate), "rtpdump conversion (rate: RTP byte rate, remb: REMB estimates)")
	flags.Int64Var(&traceSeed, "seed", abr.DefaultRandomWalkConfig().Seed, "Random-walk seed when no trace is given")
	flags.DurationVar(&traceDuration, "duration", 2*time.Minute, "Random-walk length when no trace is given")
}

// resolve merges defaults, the YAML file and explicitly set flags, in that
// order of increasing precedence.
func resolve(cmd *cobra.Command) (Config, abr.SimulationConfig, *abr.BandwidthTrace, error) {
	file, err := LoadConfig(configPath)
	if err != nil {
		return file, abr.SimulationConfig{}, nil, err
	}
	changed := cmd.Flags().Changed

	if file.LogLevel != "" && !changed("log") {
		logLevel = file.LogLevel
	}
	s := file.Simulation
	if s.Algorithm != "" && !changed("algorithm") {
		algorithmName = s.Algorithm
	}
	if s.WindowSize != nil && !changed("window") {
		windowSize = *s.WindowSize
	}
	if s.BufferSizeMax != nil && !changed("buffer") {
		bufferSizeMax = *s.BufferSizeMax
	}
	if s.SegmentDuration != nil && !changed("segment") {
		segmentDuration = *s.SegmentDuration
	}
	if s.StallThreshold != nil && !changed("threshold") {
		stallThreshold = *s.StallThreshold
	}
	if s.MaxHorizon != nil && !changed("horizon") {
		maxHorizon = *s.MaxHorizon
	}
	if s.Bitrates != nil && !changed("bitrates") {
		bitrates = s.Bitrates
	}

	algo, err := abr.ParseAlgorithmName(algorithmName)
	if err != nil {
		return file, abr.SimulationConfig{}, nil, err
	}
	cfg := abr.SimulationConfig{
		Algorithm:       algo,
		WindowSize:      windowSize,
		BufferSizeMax:   bufferSizeMax,
		SegmentDuration: segmentDuration,
		StallThreshold:  stallThreshold,
		Bitrates:        bitrates,
		MaxHorizon:      maxHorizon,
	}
	if err := cfg.Validate(); err != nil {
		return file, cfg, nil, err
	}

	trace, err := loadTrace(cmd, file.Trace)
	return file, cfg, trace, err
}

func loadTrace(cmd *cobra.Command, t TraceSection) (*abr.BandwidthTrace, error) {
	changed := cmd.Flags().Changed
	if t.File != "" && !changed("trace") {
		tracePath = t.File
	}
	if t.Source != "" && !changed("trace-source") {
		traceSource = t.Source
	}
	if tracePath != "" {
		src, err := traceio.ParseSource(traceSource)
		if err != nil {
			return nil, err
		}
		return traceio.ReadFileAs(tracePath, src)
	}

	if len(t.Phases) > 0 && !changed("seed") && !changed("duration") {
		phases := make([]abr.Phase, len(t.Phases))
		for i, p := range t.Phases {
			phases[i] = abr.Phase{Duration: p.Duration.Seconds(), ThroughputKbps: p.Capacity}
		}
		return abr.PhasedTrace(phases...)
	}

	if t.Seed != nil && !changed("seed") {
		traceSeed = *t.Seed
	}
	if t.Length > 0 && !changed("duration") {
		traceDuration = t.Length
	}
	walk := abr.DefaultRandomWalkConfig()
	walk.Seed = traceSeed
	walk.Duration = traceDuration.Seconds()
	return abr.RandomWalkTrace(walk)
}
