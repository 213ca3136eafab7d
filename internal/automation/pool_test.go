package automation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestPool(t *testing.T, config Config, instances ...LoadBalancerInstance) *PoolManager {
	t.Helper()
	return NewPoolManager(zaptest.NewLogger(t), config, instances, fixedSource(0.5))
}

func active(id string, load float64) LoadBalancerInstance {
	return LoadBalancerInstance{ID: id, Name: "Load Balancer " + id, Status: StatusActive, LoadPercent: load, RequestsServed: 1000, AvgResponseTimeMs: 40}
}

func standby(id string) LoadBalancerInstance {
	return LoadBalancerInstance{ID: id, Name: "Load Balancer " + id, Status: StatusStandby}
}

func TestPoolManager_PromotesStandbyWhenOverloaded(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(), active("a", 85), standby("b"))

	events := pm.Tick(context.Background(), DefaultMetrics())
	require.Len(t, events, 1)
	assert.Equal(t, EventPromoted, events[0].Kind)
	assert.Equal(t, "b", events[0].Subject)
	assert.NotEmpty(t, events[0].ID)

	pool := pm.Instances()
	assert.Equal(t, StatusActive, pool[0].Status)
	assert.Equal(t, 85.0, pool[0].LoadPercent)
	assert.Equal(t, uint64(1050), pool[0].RequestsServed)

	assert.Equal(t, StatusActive, pool[1].Status)
	assert.Equal(t, 25.0, pool[1].LoadPercent)
	assert.Equal(t, uint64(0), pool[1].RequestsServed)
}

func TestPoolManager_DemotesOneUnderutilized(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(), active("a", 15), active("b", 18), active("c", 50))

	events := pm.Tick(context.Background(), DefaultMetrics())
	require.Len(t, events, 1)
	assert.Equal(t, EventDemoted, events[0].Kind)
	assert.Equal(t, "a", events[0].Subject)

	pool := pm.Instances()
	assert.Equal(t, StatusStandby, pool[0].Status)
	assert.Equal(t, 0.0, pool[0].LoadPercent)
	assert.Equal(t, uint64(0), pool[0].RequestsServed)
	assert.Equal(t, StatusActive, pool[1].Status)
	assert.Equal(t, StatusActive, pool[2].Status)
}

func TestPoolManager_FloorBlocksDemotion(t *testing.T) {
	tests := []struct {
		name string
		pool []LoadBalancerInstance
	}{
		{"single active", []LoadBalancerInstance{active("a", 15)}},
		{"active equals floor", []LoadBalancerInstance{active("a", 15), active("b", 12), standby("c")}},
		{"one underutilized", []LoadBalancerInstance{active("a", 15), active("b", 50), active("c", 60)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newTestPool(t, DefaultConfig(), tt.pool...)
			before := pm.Instances()

			events := pm.Rebalance(context.Background())
			assert.Empty(t, events)
			assert.Equal(t, before, pm.Instances())
		})
	}
}

func TestPoolManager_PromotionTakesPriority(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(),
		active("a", 85), active("b", 10), active("c", 12), standby("d"))

	events := pm.Rebalance(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, EventPromoted, events[0].Kind)
	assert.Equal(t, "d", events[0].Subject)

	pool := pm.Instances()
	assert.Equal(t, StatusActive, pool[1].Status)
	assert.Equal(t, StatusActive, pool[2].Status)

	// The next tick has nothing to promote and demotes.
	events = pm.Rebalance(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, EventDemoted, events[0].Kind)
	assert.Equal(t, "b", events[0].Subject)
}

func TestPoolManager_OverloadWithoutStandby(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(), active("a", 85), active("b", 10), active("c", 12))

	// No standby to promote, so demotion is evaluated.
	events := pm.Rebalance(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, EventDemoted, events[0].Kind)
}

func TestPoolManager_OfflineIsTerminal(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(), active("a", 85), standby("b"), standby("c"))
	require.NoError(t, pm.MarkOffline("b"))

	events := pm.Rebalance(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, "c", events[0].Subject)

	pool := pm.Instances()
	assert.Equal(t, StatusOffline, pool[1].Status)

	err := pm.MarkOffline("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPoolManager_DriftOnlyTouchesActive(t *testing.T) {
	pm := NewPoolManager(zaptest.NewLogger(t), DefaultConfig(),
		[]LoadBalancerInstance{active("a", 50), standby("b")}, rand.New(rand.NewSource(7)))

	for i := 0; i < 100; i++ {
		prev := pm.Instances()
		pm.Tick(context.Background(), DefaultMetrics())
		next := pm.Instances()

		for j := range next {
			if next[j].Status == StatusStandby {
				assert.Equal(t, 0.0, next[j].LoadPercent)
			}
			if prev[j].Status == StatusActive && next[j].Status == StatusActive && prev[j].ID == next[j].ID {
				assert.GreaterOrEqual(t, next[j].RequestsServed, prev[j].RequestsServed)
			}
		}
	}
}

func TestPoolManager_CancelledTickDiscarded(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(), active("a", 85), standby("b"))
	before := pm.Instances()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, pm.Tick(ctx, DefaultMetrics()))
	assert.Nil(t, pm.Rebalance(ctx))
	assert.Equal(t, before, pm.Instances())
}

func TestPoolManager_InstancesIsCopy(t *testing.T) {
	pm := newTestPool(t, DefaultConfig(), DefaultPool()...)

	pool := pm.Instances()
	pool[0].LoadPercent = 99
	pool[2].Status = StatusActive

	assert.Equal(t, DefaultPool(), pm.Instances())
}

// Random pools driven by random draws: a tick changes at most one status,
// and the active count never drops below the floor once it has reached it.
func TestPoolManager_InvariantsUnderRandomDrift(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	config := DefaultConfig()

	for trial := 0; trial < 200; trial++ {
		size := 1 + rng.Intn(6)
		pool := make([]LoadBalancerInstance, size)
		for i := range pool {
			id := string(rune('a' + i))
			if rng.Intn(2) == 0 {
				pool[i] = active(id, InstanceLoadBounds.Clamp(rng.Float64()*100))
			} else {
				pool[i] = standby(id)
			}
		}

		pm := NewPoolManager(zaptest.NewLogger(t), config, pool, rng)
		for tick := 0; tick < 50; tick++ {
			prev := pm.Instances()
			events := pm.Tick(context.Background(), DefaultMetrics())
			next := pm.Instances()

			changed := 0
			for i := range next {
				if next[i].Status != prev[i].Status {
					changed++
				}
			}
			require.LessOrEqual(t, changed, 1)
			require.Len(t, events, changed)

			before, after := countStatus(prev, StatusActive), countStatus(next, StatusActive)
			if before >= config.ActiveFloor {
				require.GreaterOrEqual(t, after, config.ActiveFloor,
					"trial %d tick %d: active dropped from %d to %d", trial, tick, before, after)
			}
			if after < before {
				require.Greater(t, before, config.ActiveFloor)
			}
		}
	}
}
