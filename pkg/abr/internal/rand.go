package internal

// SplitMix64 is a deterministic pseudo-random stream. The state advances by
// a fixed increment and each output is a mix of the state, so the same seed
// always yields the same sequence across Go releases.
// It is not safe for concurrent use.
type SplitMix64 struct {
	state uint64
}

// NewSplitMix64 creates a stream seeded with seed.
func NewSplitMix64(seed int64) *SplitMix64 {
	return &SplitMix64{state: uint64(seed)}
}

// Uint64 returns the next value of the stream.
func (r *SplitMix64) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1).
func (r *SplitMix64) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Intn returns a value in [0, n). Panics if n <= 0.
func (r *SplitMix64) Intn(n int) int {
	if n <= 0 {
		panic("SplitMix64.Intn: n must be positive")
	}
	return int(r.Uint64() % uint64(n))
}
