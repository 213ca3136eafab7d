package automation

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// History keeps the most recent metrics samples in a ring.
type History struct {
	mu      sync.RWMutex
	samples []ResourceMetrics
	next    int
	full    bool
}

// NewHistory creates a ring holding up to size samples. Size zero disables
// recording.
func NewHistory(size int) *History {
	return &History{samples: make([]ResourceMetrics, size)}
}

// Record appends m, evicting the oldest sample when full.
func (h *History) Record(m ResourceMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return
	}
	h.samples[h.next] = m
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

// Samples returns the retained samples, oldest first.
func (h *History) Samples() []ResourceMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		out := make([]ResourceMetrics, h.next)
		copy(out, h.samples[:h.next])
		return out
	}
	out := make([]ResourceMetrics, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	out = append(out, h.samples[:h.next]...)
	return out
}

// FieldSummary describes one metric over the retained window.
type FieldSummary struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// MetricsSummary aggregates the history window per field.
type MetricsSummary struct {
	Samples           int          `json:"samples" yaml:"samples"`
	CPU               FieldSummary `json:"cpu" yaml:"cpu"`
	Memory            FieldSummary `json:"memory" yaml:"memory"`
	Storage           FieldSummary `json:"storage" yaml:"storage"`
	Network           FieldSummary `json:"network" yaml:"network"`
	ResponseTimeMs    FieldSummary `json:"response_time_ms" yaml:"response_time_ms"`
	Throughput        FieldSummary `json:"throughput_req_per_sec" yaml:"throughput_req_per_sec"`
	ActiveConnections FieldSummary `json:"active_connections" yaml:"active_connections"`
}

// Summary computes statistics over the retained samples.
func (h *History) Summary() MetricsSummary {
	samples := h.Samples()
	summary := MetricsSummary{Samples: len(samples)}
	if len(samples) == 0 {
		return summary
	}

	column := func(pick func(ResourceMetrics) float64) FieldSummary {
		xs := make([]float64, len(samples))
		for i, m := range samples {
			xs[i] = pick(m)
		}
		fs := FieldSummary{
			Mean: stat.Mean(xs, nil),
			Min:  floats.Min(xs),
			Max:  floats.Max(xs),
		}
		if len(xs) > 1 {
			fs.StdDev = stat.StdDev(xs, nil)
		}
		return fs
	}

	summary.CPU = column(func(m ResourceMetrics) float64 { return m.CPU })
	summary.Memory = column(func(m ResourceMetrics) float64 { return m.Memory })
	summary.Storage = column(func(m ResourceMetrics) float64 { return m.Storage })
	summary.Network = column(func(m ResourceMetrics) float64 { return m.Network })
	summary.ResponseTimeMs = column(func(m ResourceMetrics) float64 { return m.ResponseTimeMs })
	summary.Throughput = column(func(m ResourceMetrics) float64 { return m.ThroughputReqPerSec })
	summary.ActiveConnections = column(func(m ResourceMetrics) float64 { return float64(m.ActiveConnections) })
	return summary
}
