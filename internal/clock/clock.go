// Package clock provides the engine's injectable time and randomness
// sources, for deterministic testing.
package clock

import (
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts wall-clock time so scheduler tests can drive synthetic time.
type Clock interface {
	Now() time.Time
	// After returns a channel that fires once after d, mirroring time.After.
	After(d time.Duration) <-chan time.Time
	// NewTimer returns a stoppable timer, mirroring time.NewTimer.
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RandomSource abstracts jitter generation for deterministic tests.
type RandomSource interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

// --- real implementations ---

type realClock struct{}

// Real is the production Clock backed by the standard library.
var Real Clock = realClock{}

func (realClock) Now() time.Time                        { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) NewTimer(d time.Duration) Timer         { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

type realRandom struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRealRandom returns a RandomSource seeded from the current time.
func NewRealRandom() RandomSource {
	return &realRandom{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *realRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

// Jitter returns base adjusted by a uniform random amount within ±pct,
// using src for the random draw. pct is a fraction, e.g. 0.1 for ±10%.
func Jitter(src RandomSource, base time.Duration, pct float64) time.Duration {
	if pct <= 0 {
		return base
	}
	spread := float64(base) * pct
	delta := (src.Float64()*2 - 1) * spread
	result := time.Duration(float64(base) + delta)
	if result < 0 {
		return 0
	}
	return result
}
