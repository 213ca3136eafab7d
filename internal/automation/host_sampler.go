package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// HostSamplerConfig configures host telemetry collection.
type HostSamplerConfig struct {
	DiskPath string `yaml:"disk_path"`
	// LinkCapacityMbps is the bandwidth that counts as 100% network usage.
	LinkCapacityMbps float64 `yaml:"link_capacity_mbps"`
}

// DefaultHostSamplerConfig returns defaults for a single gigabit host.
func DefaultHostSamplerConfig() HostSamplerConfig {
	return HostSamplerConfig{
		DiskPath:         "/",
		LinkCapacityMbps: 1000,
	}
}

// hostProbe is the set of host reads a HostSampler performs.
type hostProbe struct {
	cpuPercent  func(ctx context.Context) (float64, error)
	memPercent  func(ctx context.Context) (float64, error)
	diskPercent func(ctx context.Context, path string) (float64, error)
	netBytes    func(ctx context.Context) (uint64, error)
	tcpConns    func(ctx context.Context) (int, error)
}

func gopsutilProbe() hostProbe {
	return hostProbe{
		cpuPercent: func(ctx context.Context) (float64, error) {
			percent, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				return 0, err
			}
			if len(percent) == 0 {
				return 0, fmt.Errorf("no cpu samples")
			}
			return percent[0], nil
		},
		memPercent: func(ctx context.Context) (float64, error) {
			vmem, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return vmem.UsedPercent, nil
		},
		diskPercent: func(ctx context.Context, path string) (float64, error) {
			usage, err := disk.UsageWithContext(ctx, path)
			if err != nil {
				return 0, err
			}
			return usage.UsedPercent, nil
		},
		netBytes: func(ctx context.Context) (uint64, error) {
			stats, err := net.IOCountersWithContext(ctx, false)
			if err != nil {
				return 0, err
			}
			if len(stats) == 0 {
				return 0, fmt.Errorf("no network counters")
			}
			return stats[0].BytesSent + stats[0].BytesRecv, nil
		},
		tcpConns: func(ctx context.Context) (int, error) {
			conns, err := net.ConnectionsWithContext(ctx, "tcp")
			if err != nil {
				return 0, err
			}
			return len(conns), nil
		},
	}
}

// HostSampler reads CPU, memory, disk, network and TCP connection usage from
// the local host. Response time and throughput have no host source and come
// from the fallback sampler. Any failed probe fails the whole sample so the
// previous record stays in place.
type HostSampler struct {
	logger   *zap.Logger
	config   HostSamplerConfig
	fallback Sampler
	probe    hostProbe
	now      func() time.Time

	mu        sync.Mutex
	lastBytes uint64
	lastAt    time.Time
}

// NewHostSampler creates a host-backed sampler. A nil fallback uses a
// SimulatedSampler.
func NewHostSampler(logger *zap.Logger, config HostSamplerConfig, fallback Sampler) *HostSampler {
	if fallback == nil {
		fallback = NewSimulatedSampler(nil)
	}
	if config.DiskPath == "" {
		config.DiskPath = "/"
	}
	return &HostSampler{
		logger:   logger,
		config:   config,
		fallback: fallback,
		probe:    gopsutilProbe(),
		now:      time.Now,
	}
}

// Sample reads the host and merges the fallback fields.
func (h *HostSampler) Sample(ctx context.Context, prev ResourceMetrics) (ResourceMetrics, error) {
	next, err := h.fallback.Sample(ctx, prev)
	if err != nil {
		return prev, fmt.Errorf("fallback sample: %w", err)
	}

	if next.CPU, err = h.probe.cpuPercent(ctx); err != nil {
		return prev, fmt.Errorf("read cpu usage: %w", err)
	}
	if next.Memory, err = h.probe.memPercent(ctx); err != nil {
		return prev, fmt.Errorf("read memory usage: %w", err)
	}
	if next.Storage, err = h.probe.diskPercent(ctx, h.config.DiskPath); err != nil {
		return prev, fmt.Errorf("read disk usage of %s: %w", h.config.DiskPath, err)
	}
	if next.ActiveConnections, err = h.probe.tcpConns(ctx); err != nil {
		return prev, fmt.Errorf("count tcp connections: %w", err)
	}
	network, err := h.networkPercent(ctx, prev.Network)
	if err != nil {
		return prev, fmt.Errorf("read network counters: %w", err)
	}
	next.Network = network
	next.SampledAt = h.now()

	h.logger.Debug("Host sample",
		zap.Float64("cpu", next.CPU),
		zap.Float64("memory", next.Memory),
		zap.Float64("storage", next.Storage),
		zap.Float64("network", next.Network),
		zap.Int("tcp_connections", next.ActiveConnections),
	)
	return next, nil
}

// networkPercent converts the byte counter delta since the last sample into
// a share of link capacity. The first reading has no delta and keeps prev.
func (h *HostSampler) networkPercent(ctx context.Context, prev float64) (float64, error) {
	total, err := h.probe.netBytes(ctx)
	if err != nil {
		return 0, err
	}
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	lastBytes, lastAt := h.lastBytes, h.lastAt
	h.lastBytes, h.lastAt = total, now

	elapsed := now.Sub(lastAt).Seconds()
	if lastAt.IsZero() || elapsed <= 0 || total < lastBytes || h.config.LinkCapacityMbps <= 0 {
		return prev, nil
	}
	mbps := float64(total-lastBytes) * 8 / elapsed / 1e6
	return mbps / h.config.LinkCapacityMbps * 100, nil
}
