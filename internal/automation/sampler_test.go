package automation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource always returns the same draw. 0.5 yields a zero perturbation.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

// sequenceSource replays draws in order and then repeats the last one.
type sequenceSource struct {
	draws []float64
	i     int
}

func (s *sequenceSource) Float64() float64 {
	v := s.draws[s.i]
	if s.i < len(s.draws)-1 {
		s.i++
	}
	return v
}

func assertMetricsInBounds(t *testing.T, m ResourceMetrics) {
	t.Helper()
	assert.True(t, CPUBounds.Contains(m.CPU), "cpu %v", m.CPU)
	assert.True(t, MemoryBounds.Contains(m.Memory), "memory %v", m.Memory)
	assert.True(t, StorageBounds.Contains(m.Storage), "storage %v", m.Storage)
	assert.True(t, NetworkBounds.Contains(m.Network), "network %v", m.Network)
	assert.True(t, ResponseTimeBounds.Contains(m.ResponseTimeMs), "response time %v", m.ResponseTimeMs)
	assert.True(t, ThroughputBounds.Contains(m.ThroughputReqPerSec), "throughput %v", m.ThroughputReqPerSec)
	assert.True(t, ConnectionBounds.Contains(float64(m.ActiveConnections)), "connections %v", m.ActiveConnections)
}

func TestSimulatedSampler_StaysWithinBounds(t *testing.T) {
	sampler := NewSimulatedSampler(rand.New(rand.NewSource(42)))
	ctx := context.Background()

	m := DefaultMetrics()
	for i := 0; i < 10000; i++ {
		next, err := sampler.Sample(ctx, m)
		require.NoError(t, err)
		assertMetricsInBounds(t, next)
		m = next
	}
}

func TestSimulatedSampler_ExtremeDraws(t *testing.T) {
	ctx := context.Background()

	low := NewSimulatedSampler(fixedSource(0))
	m := DefaultMetrics()
	for i := 0; i < 500; i++ {
		m, _ = low.Sample(ctx, m)
	}
	assert.Equal(t, CPUBounds.Min, m.CPU)
	assert.Equal(t, ResponseTimeBounds.Min, m.ResponseTimeMs)
	assert.Equal(t, int(ConnectionBounds.Min), m.ActiveConnections)

	high := NewSimulatedSampler(fixedSource(0.999999))
	for i := 0; i < 500; i++ {
		m, _ = high.Sample(ctx, m)
	}
	assert.InDelta(t, CPUBounds.Max, m.CPU, 0.01)
	assert.InDelta(t, ThroughputBounds.Max, m.ThroughputReqPerSec, 0.01)
	assert.Equal(t, int(ConnectionBounds.Max), m.ActiveConnections)
}

func TestSimulatedSampler_MidpointDrawIsNoOp(t *testing.T) {
	sampler := NewSimulatedSampler(fixedSource(0.5))

	seed := DefaultMetrics()
	next, err := sampler.Sample(context.Background(), seed)
	require.NoError(t, err)

	assert.Equal(t, seed.CPU, next.CPU)
	assert.Equal(t, seed.Memory, next.Memory)
	assert.Equal(t, seed.ResponseTimeMs, next.ResponseTimeMs)
	assert.Equal(t, seed.ActiveConnections, next.ActiveConnections)
	assert.False(t, next.SampledAt.IsZero())
}

func TestSimulatedSampler_ConnectionDeltaTruncates(t *testing.T) {
	// (0.499 - 0.5) * 300 = -0.3, which truncates to zero.
	sampler := NewSimulatedSampler(fixedSource(0.499))
	next, err := sampler.Sample(context.Background(), DefaultMetrics())
	require.NoError(t, err)
	assert.Equal(t, 2847, next.ActiveConnections)
}

func TestMetricsStore_ClampsOnStore(t *testing.T) {
	store := NewMetricsStore(ResourceMetrics{
		CPU:                 150,
		Memory:              -5,
		Storage:             50,
		Network:             10,
		ResponseTimeMs:      999,
		ThroughputReqPerSec: 0,
		ActiveConnections:   100000,
	})

	m := store.Load()
	assert.Equal(t, 95.0, m.CPU)
	assert.Equal(t, 30.0, m.Memory)
	assert.Equal(t, 50.0, m.Storage)
	assert.Equal(t, 40.0, m.Network)
	assert.Equal(t, 200.0, m.ResponseTimeMs)
	assert.Equal(t, 800.0, m.ThroughputReqPerSec)
	assert.Equal(t, 5000, m.ActiveConnections)

	store.Store(DefaultMetrics())
	assert.Equal(t, DefaultMetrics(), store.Load())
}

func TestBounds(t *testing.T) {
	b := Bounds{Min: 10, Max: 90}
	assert.Equal(t, 10.0, b.Clamp(-1))
	assert.Equal(t, 90.0, b.Clamp(91))
	assert.Equal(t, 42.0, b.Clamp(42))
	assert.True(t, b.Contains(10))
	assert.True(t, b.Contains(90))
	assert.False(t, b.Contains(90.0001))
}
