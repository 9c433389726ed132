package divination

import (
	"math/rand/v2"
	"sync"
	"time"
)

// RNG is the uniform random source used for draws, throw resolution and
// shake jitter. Implementations must be safe for concurrent use.
type RNG interface {
	// IntN returns a uniform integer in [0, n). It panics if n <= 0.
	IntN(n int) int
	// Float64 returns a uniform float in [0.0, 1.0).
	Float64() float64
}

type lockedRNG struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRNG) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRNG) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// NewRNG returns a randomly seeded source.
func NewRNG() RNG {
	return &lockedRNG{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRNG returns a deterministic source. Two sources with the same seed
// produce the same sequence.
func NewSeededRNG(seed uint64) RNG {
	return &lockedRNG{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// durationBetween returns a uniform duration in [lo, hi].
func durationBetween(rng RNG, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Float64()*float64(hi-lo))
}
