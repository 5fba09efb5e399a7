// Package boundary exposes the simulator through a flat call/response
// surface: a fixed-layout configuration record passed by value, two entry
// points and an explicit release for engine-owned telemetry buffers.
package boundary

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/pion/logging"

	"github.com/thesyncim/abrsim/pkg/abr"
)

var (
	// ErrUnknownBuffer reports a release of a buffer this engine never
	// handed out.
	ErrUnknownBuffer = errors.New("unknown trace buffer")

	// ErrBufferReleased reports a second release of the same buffer.
	ErrBufferReleased = errors.New("trace buffer already released")
)

// SimConfig is the fixed-layout input record. Field order and widths are
// part of the contract.
type SimConfig struct {
	AbrType         uint32
	AbrWindowSize   uint32
	BufferSizeMax   float32
	SegmentDuration float32
	StallThreshold  float32
}

// DefaultSimConfig returns the record for abr.DefaultSimulationConfig.
func DefaultSimConfig() SimConfig {
	return FromSimulationConfig(abr.DefaultSimulationConfig())
}

// FromSimulationConfig narrows an engine configuration to the record layout.
// Ladder overrides and horizons do not cross the boundary.
func FromSimulationConfig(c abr.SimulationConfig) SimConfig {
	return SimConfig{
		AbrType:         uint32(c.Algorithm),
		AbrWindowSize:   uint32(c.WindowSize),
		BufferSizeMax:   float32(c.BufferSizeMax),
		SegmentDuration: float32(c.SegmentDuration),
		StallThreshold:  float32(c.StallThreshold),
	}
}

// SimulationConfig validates the record and converts it to an engine
// configuration. The abr_type selector is resolved here and never reaches
// the engine as a raw integer.
func (c SimConfig) SimulationConfig() (abr.SimulationConfig, error) {
	algo, err := abr.ParseAlgorithm(c.AbrType)
	if err != nil {
		return abr.SimulationConfig{}, err
	}
	if c.AbrWindowSize > math.MaxInt32 {
		return abr.SimulationConfig{}, fmt.Errorf("%w: window size %d", abr.ErrInvalidConfig, c.AbrWindowSize)
	}
	cfg := abr.SimulationConfig{
		Algorithm:       algo,
		WindowSize:      int(c.AbrWindowSize),
		BufferSizeMax:   float64(c.BufferSizeMax),
		SegmentDuration: float64(c.SegmentDuration),
		StallThreshold:  float64(c.StallThreshold),
	}
	if err := cfg.Validate(); err != nil {
		return abr.SimulationConfig{}, err
	}
	return cfg, nil
}

// TraceBuffer is an engine-owned JSON telemetry buffer. It stays valid until
// released through the engine that returned it, exactly once.
type TraceBuffer struct {
	id       uint64
	data     []byte
	released bool
}

// Bytes returns the UTF-8 JSON array, or nil once released.
// Callers must not retain the slice after release.
func (b *TraceBuffer) Bytes() []byte {
	return b.data
}

// String returns the JSON text.
func (b *TraceBuffer) String() string {
	return string(b.data)
}

// Len returns the encoded length in bytes.
func (b *TraceBuffer) Len() int {
	return len(b.data)
}

// Engine runs simulations over a fixed trace and tracks the buffers it has
// handed out. It is safe for concurrent use.
type Engine struct {
	trace *abr.BandwidthTrace
	log   logging.LeveledLogger

	mu     sync.Mutex
	live   map[uint64]*TraceBuffer
	nextID uint64
}

// NewEngine creates an engine simulating over trace.
// If trace is nil, abr.DefaultTrace is used. If logger is nil, a logger from
// the pion default factory is used.
func NewEngine(trace *abr.BandwidthTrace, logger logging.LeveledLogger) *Engine {
	if trace == nil {
		trace = abr.DefaultTrace()
	}
	if logger == nil {
		logger = logging.NewDefaultLoggerFactory().NewLogger("abr-boundary")
	}
	return &Engine{
		trace: trace,
		log:   logger,
		live:  make(map[uint64]*TraceBuffer),
	}
}

// Trace returns the trace the engine simulates over.
func (e *Engine) Trace() *abr.BandwidthTrace {
	return e.trace
}

func (e *Engine) run(c SimConfig) ([]abr.Frame, abr.SimulationConfig, error) {
	cfg, err := c.SimulationConfig()
	if err != nil {
		return nil, cfg, err
	}
	sim, err := abr.NewSimulator(cfg, e.trace, e.log)
	if err != nil {
		return nil, cfg, err
	}
	frames, err := sim.Run()
	return frames, cfg, err
}

// SimulateAndGetJSON runs the simulation and returns the frame telemetry as
// an engine-owned JSON buffer. The caller must release it with
// FreeSimulationString. On failure no buffer is allocated and nothing needs
// releasing.
func (e *Engine) SimulateAndGetJSON(c SimConfig) (*TraceBuffer, error) {
	frames, _, err := e.run(c)
	if err != nil {
		return nil, err
	}
	data, err := abr.MarshalFrames(frames)
	if err != nil {
		return nil, fmt.Errorf("encode telemetry: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	buf := &TraceBuffer{id: e.nextID, data: data}
	e.live[buf.id] = buf
	e.log.Debugf("trace buffer %d allocated: %d frames, %d bytes", buf.id, len(frames), len(data))
	return buf, nil
}

// SimulateAndGetScore runs the simulation and returns only the QoE score.
// No buffer is allocated.
func (e *Engine) SimulateAndGetScore(c SimConfig) (float32, error) {
	frames, cfg, err := e.run(c)
	if err != nil {
		return 0, err
	}
	return float32(abr.Score(frames, cfg.Ladder())), nil
}

// FreeSimulationString releases a buffer returned by SimulateAndGetJSON.
// Releasing a buffer twice fails with ErrBufferReleased; releasing a buffer
// from another engine, or nil, fails with ErrUnknownBuffer.
func (e *Engine) FreeSimulationString(b *TraceBuffer) error {
	if b == nil {
		return ErrUnknownBuffer
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b.released {
		return fmt.Errorf("%w: buffer %d", ErrBufferReleased, b.id)
	}
	if e.live[b.id] != b {
		return fmt.Errorf("%w: buffer %d", ErrUnknownBuffer, b.id)
	}
	delete(e.live, b.id)
	b.released = true
	b.data = nil
	return nil
}

// Live returns the number of buffers handed out and not yet released.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// WithTrace runs the simulation, passes the JSON telemetry to fn and
// releases the buffer on every exit path, including a panic in fn.
func (e *Engine) WithTrace(c SimConfig, fn func(json []byte) error) (err error) {
	buf, err := e.SimulateAndGetJSON(c)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := e.FreeSimulationString(buf); ferr != nil && err == nil {
			err = ferr
		}
	}()
	return fn(buf.Bytes())
}

var defaultEngine = sync.OnceValue(func() *Engine {
	return NewEngine(nil, nil)
})

// Default returns the process-wide engine over abr.DefaultTrace.
func Default() *Engine {
	return defaultEngine()
}

// SimulateAndGetJSON calls SimulateAndGetJSON on the default engine.
func SimulateAndGetJSON(c SimConfig) (*TraceBuffer, error) {
	return Default().SimulateAndGetJSON(c)
}

// SimulateAndGetScore calls SimulateAndGetScore on the default engine.
func SimulateAndGetScore(c SimConfig) (float32, error) {
	return Default().SimulateAndGetScore(c)
}

// FreeSimulationString calls FreeSimulationString on the default engine.
func FreeSimulationString(b *TraceBuffer) error {
	return Default().FreeSimulationString(b)
}
