package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory_RingEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Record(ResourceMetrics{CPU: float64(i * 10)})
	}

	samples := h.Samples()
	assert.Len(t, samples, 3)
	assert.Equal(t, 30.0, samples[0].CPU)
	assert.Equal(t, 50.0, samples[2].CPU)
}

func TestHistory_ZeroSizeDisables(t *testing.T) {
	h := NewHistory(0)
	h.Record(DefaultMetrics())
	assert.Empty(t, h.Samples())
	assert.Equal(t, 0, h.Summary().Samples)
}

func TestHistory_Summary(t *testing.T) {
	h := NewHistory(10)
	for _, cpu := range []float64{20, 40, 60} {
		m := DefaultMetrics()
		m.CPU = cpu
		h.Record(m)
	}

	s := h.Summary()
	assert.Equal(t, 3, s.Samples)
	assert.InDelta(t, 40.0, s.CPU.Mean, 1e-9)
	assert.InDelta(t, 20.0, s.CPU.StdDev, 1e-9)
	assert.Equal(t, 20.0, s.CPU.Min)
	assert.Equal(t, 60.0, s.CPU.Max)

	assert.Equal(t, 2847.0, s.ActiveConnections.Mean)
	assert.Equal(t, 0.0, s.ActiveConnections.StdDev)
}

func TestHistory_SingleSampleHasNoSpread(t *testing.T) {
	h := NewHistory(4)
	h.Record(DefaultMetrics())

	s := h.Summary()
	assert.Equal(t, 85.0, s.ResponseTimeMs.Mean)
	assert.Equal(t, 0.0, s.ResponseTimeMs.StdDev)
}
