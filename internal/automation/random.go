package automation

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource yields values in [0,1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// lockedSource makes a RandomSource safe to share between tasks.
type lockedSource struct {
	mu  sync.Mutex
	src RandomSource
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

func newDefaultSource() RandomSource {
	return &lockedSource{src: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Bounds is a closed interval.
type Bounds struct {
	Min float64
	Max float64
}

// Clamp pins v into the interval.
func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v lies within the interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// perturb moves v by a uniform delta in [-spread/2, +spread/2) and clamps.
func perturb(src RandomSource, v, spread float64, b Bounds) float64 {
	return b.Clamp(v + (src.Float64()-0.5)*spread)
}
