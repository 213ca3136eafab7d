package automation

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

// Instance drift ranges and spreads.
var (
	InstanceLoadBounds         = Bounds{Min: 10, Max: 90}
	InstanceResponseTimeBounds = Bounds{Min: 20, Max: 100}
)

const (
	instanceLoadSpread         = 15.0
	instanceResponseTimeSpread = 10.0
	maxRequestsPerTick         = 100.0
)

// PoolManager owns the load balancer pool and decides promotions and
// demotions. Only its own tick writes the pool.
type PoolManager struct {
	logger *zap.Logger
	rand   RandomSource

	mu        sync.Mutex
	instances []LoadBalancerInstance
	limits    thresholds
}

// NewPoolManager creates a manager over a copy of instances.
func NewPoolManager(logger *zap.Logger, config Config, instances []LoadBalancerInstance, src RandomSource) *PoolManager {
	if src == nil {
		src = newDefaultSource()
	}
	pool := make([]LoadBalancerInstance, len(instances))
	copy(pool, instances)
	return &PoolManager{
		logger:    logger,
		rand:      src,
		instances: pool,
		limits:    config.thresholds(),
	}
}

// Tick drifts the load of every active instance, then applies the
// promotion and demotion rules. The result is discarded if ctx is done
// before it is committed.
func (pm *PoolManager) Tick(ctx context.Context, metrics ResourceMetrics) []Event {
	if ctx.Err() != nil {
		return nil
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	next := make([]LoadBalancerInstance, len(pm.instances))
	copy(next, pm.instances)
	pm.drift(next)
	events := pm.rebalance(next)

	if ctx.Err() != nil {
		pm.logger.Debug("Pool tick discarded after cancellation")
		return nil
	}
	pm.instances = next

	if len(events) > 0 {
		pm.logger.Info("Pool rebalanced",
			zap.String("event", events[0].Message),
			zap.Int("active", countStatus(next, StatusActive)),
			zap.Float64("cpu", metrics.CPU),
			zap.Float64("response_time_ms", metrics.ResponseTimeMs),
		)
	}
	return events
}

// Rebalance applies only the promotion and demotion rules, without load
// drift.
func (pm *PoolManager) Rebalance(ctx context.Context) []Event {
	if ctx.Err() != nil {
		return nil
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	next := make([]LoadBalancerInstance, len(pm.instances))
	copy(next, pm.instances)
	events := pm.rebalance(next)

	if ctx.Err() != nil {
		return nil
	}
	pm.instances = next
	return events
}

// Instances returns a copy of the pool in pool order.
func (pm *PoolManager) Instances() []LoadBalancerInstance {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	out := make([]LoadBalancerInstance, len(pm.instances))
	copy(out, pm.instances)
	return out
}

// MarkOffline moves an instance into the terminal offline state. It is a
// fault-injection hook and is never called by the control loop.
func (pm *PoolManager) MarkOffline(id string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for i := range pm.instances {
		if pm.instances[i].ID != id {
			continue
		}
		pm.instances[i].Status = StatusOffline
		pm.instances[i].LoadPercent = 0
		pm.logger.Warn("Instance marked offline", zap.String("instance", id))
		return nil
	}
	return fmt.Errorf("instance %s: %w", id, ErrNotFound)
}

func (pm *PoolManager) setThresholds(t thresholds) {
	pm.mu.Lock()
	pm.limits = t
	pm.mu.Unlock()
}

func (pm *PoolManager) drift(pool []LoadBalancerInstance) {
	for i := range pool {
		inst := &pool[i]
		if inst.Status != StatusActive {
			continue
		}
		inst.LoadPercent = perturb(pm.rand, inst.LoadPercent, instanceLoadSpread, InstanceLoadBounds)
		inst.RequestsServed += uint64(math.Floor(pm.rand.Float64() * maxRequestsPerTick))
		inst.AvgResponseTimeMs = perturb(pm.rand, inst.AvgResponseTimeMs, instanceResponseTimeSpread, InstanceResponseTimeBounds)
	}
}

// rebalance runs promotion first; demotion is evaluated only when no
// promotion happened in the same tick.
func (pm *PoolManager) rebalance(pool []LoadBalancerInstance) []Event {
	if ev, ok := pm.promote(pool); ok {
		return []Event{ev}
	}
	if ev, ok := pm.demote(pool); ok {
		return []Event{ev}
	}
	return nil
}

func (pm *PoolManager) promote(pool []LoadBalancerInstance) (Event, bool) {
	overloaded := -1
	for i, inst := range pool {
		if inst.Status == StatusActive && inst.LoadPercent > pm.limits.overload {
			overloaded = i
			break
		}
	}
	if overloaded < 0 {
		return Event{}, false
	}

	for i := range pool {
		inst := &pool[i]
		if inst.Status != StatusStandby {
			continue
		}
		inst.Status = StatusActive
		inst.LoadPercent = pm.limits.promotionSeedLoad
		inst.RequestsServed = 0
		inst.AvgResponseTimeMs = 0

		hot := pool[overloaded]
		return newEvent(EventPromoted, inst.ID,
			fmt.Sprintf("promoted %s to active: %s at %.1f%% load", inst.Name, hot.Name, hot.LoadPercent)), true
	}
	return Event{}, false
}

func (pm *PoolManager) demote(pool []LoadBalancerInstance) (Event, bool) {
	active := 0
	underutilized := make([]int, 0, len(pool))
	for i, inst := range pool {
		if inst.Status != StatusActive {
			continue
		}
		active++
		if inst.LoadPercent < pm.limits.underload {
			underutilized = append(underutilized, i)
		}
	}
	if len(underutilized) <= 1 || active <= pm.limits.activeFloor {
		return Event{}, false
	}
	if active-1 < pm.limits.activeFloor {
		pm.logger.DPanic("Demotion would breach active floor",
			zap.Int("active", active),
			zap.Int("floor", pm.limits.activeFloor),
		)
		return Event{}, false
	}

	inst := &pool[underutilized[0]]
	load := inst.LoadPercent
	inst.Status = StatusStandby
	inst.LoadPercent = 0
	inst.RequestsServed = 0

	return newEvent(EventDemoted, inst.ID,
		fmt.Sprintf("demoted %s to standby: %d instances under %.0f%% load (was %.1f%%)",
			inst.Name, len(underutilized), pm.limits.underload, load)), true
}
