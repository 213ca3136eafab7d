package automation

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// Clamp ranges for every ResourceMetrics field.
var (
	CPUBounds          = Bounds{Min: 20, Max: 95}
	MemoryBounds       = Bounds{Min: 30, Max: 90}
	StorageBounds      = Bounds{Min: 20, Max: 85}
	NetworkBounds      = Bounds{Min: 40, Max: 95}
	ResponseTimeBounds = Bounds{Min: 25, Max: 200}
	ThroughputBounds   = Bounds{Min: 800, Max: 2500}
	ConnectionBounds   = Bounds{Min: 1500, Max: 5000}
)

// Per-tick perturbation spreads.
const (
	cpuSpread          = 10.0
	memorySpread       = 8.0
	storageSpread      = 5.0
	networkSpread      = 12.0
	responseTimeSpread = 15.0
	throughputSpread   = 200.0
	connectionSpread   = 300.0
)

// Sampler produces the next metrics record from the previous one.
// Implementations may read a real telemetry source; the result is always
// clamped by the caller before it is published.
type Sampler interface {
	Sample(ctx context.Context, prev ResourceMetrics) (ResourceMetrics, error)
}

// SimulatedSampler applies a bounded random walk to every field.
type SimulatedSampler struct {
	rand RandomSource
	now  func() time.Time
}

// NewSimulatedSampler creates a random-walk sampler. A nil source uses a
// time-seeded generator.
func NewSimulatedSampler(src RandomSource) *SimulatedSampler {
	if src == nil {
		src = newDefaultSource()
	}
	return &SimulatedSampler{rand: src, now: time.Now}
}

// Sample never fails.
func (s *SimulatedSampler) Sample(_ context.Context, prev ResourceMetrics) (ResourceMetrics, error) {
	next := ResourceMetrics{
		CPU:                 perturb(s.rand, prev.CPU, cpuSpread, CPUBounds),
		Memory:              perturb(s.rand, prev.Memory, memorySpread, MemoryBounds),
		Storage:             perturb(s.rand, prev.Storage, storageSpread, StorageBounds),
		Network:             perturb(s.rand, prev.Network, networkSpread, NetworkBounds),
		ResponseTimeMs:      perturb(s.rand, prev.ResponseTimeMs, responseTimeSpread, ResponseTimeBounds),
		ThroughputReqPerSec: perturb(s.rand, prev.ThroughputReqPerSec, throughputSpread, ThroughputBounds),
		SampledAt:           s.now(),
	}
	delta := math.Trunc((s.rand.Float64() - 0.5) * connectionSpread)
	next.ActiveConnections = int(ConnectionBounds.Clamp(float64(prev.ActiveConnections) + delta))
	return next, nil
}

// ClampMetrics pins every field of m into its declared range.
func ClampMetrics(m ResourceMetrics) ResourceMetrics {
	m.CPU = CPUBounds.Clamp(m.CPU)
	m.Memory = MemoryBounds.Clamp(m.Memory)
	m.Storage = StorageBounds.Clamp(m.Storage)
	m.Network = NetworkBounds.Clamp(m.Network)
	m.ResponseTimeMs = ResponseTimeBounds.Clamp(m.ResponseTimeMs)
	m.ThroughputReqPerSec = ThroughputBounds.Clamp(m.ThroughputReqPerSec)
	m.ActiveConnections = int(ConnectionBounds.Clamp(float64(m.ActiveConnections)))
	return m
}

// MetricsStore publishes immutable ResourceMetrics records. It has a single
// writer (the sampler task) and any number of readers.
type MetricsStore struct {
	current atomic.Pointer[ResourceMetrics]
}

// NewMetricsStore creates a store seeded with initial, clamped.
func NewMetricsStore(initial ResourceMetrics) *MetricsStore {
	s := &MetricsStore{}
	s.Store(initial)
	return s
}

// Load returns the latest record by value.
func (s *MetricsStore) Load() ResourceMetrics {
	return *s.current.Load()
}

// Store clamps m and swaps it in.
func (s *MetricsStore) Store(m ResourceMetrics) {
	m = ClampMetrics(m)
	s.current.Store(&m)
}
