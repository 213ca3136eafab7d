package automation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func pendingCatalog() []OptimizationRecord {
	return []OptimizationRecord{
		{ID: "cache", Description: "Cache", Category: CategoryCache, Impact: ImpactHigh, Status: OptimizationPending},
		{ID: "cdn", Description: "CDN", Category: CategoryEdgeDistribution, Impact: ImpactHigh, Status: OptimizationPending},
	}
}

func TestOptimizationEngine_ActivatesInCatalogOrder(t *testing.T) {
	oe := NewOptimizationEngine(zaptest.NewLogger(t), DefaultConfig(), pendingCatalog())
	slow := ResourceMetrics{ResponseTimeMs: 120}

	events := oe.Tick(context.Background(), slow)
	require.Len(t, events, 1)
	assert.Equal(t, EventOptimizationActivated, events[0].Kind)
	assert.Equal(t, "cache", events[0].Subject)

	records := oe.Records()
	assert.Equal(t, OptimizationActive, records[0].Status)
	assert.False(t, records[0].ActivatedAt.IsZero())
	assert.Equal(t, OptimizationPending, records[1].Status)

	events = oe.Tick(context.Background(), slow)
	require.Len(t, events, 1)
	assert.Equal(t, "cdn", events[0].Subject)
	assert.Equal(t, 0, oe.PendingCount())

	// Nothing left to activate.
	assert.Empty(t, oe.Tick(context.Background(), slow))
}

func TestOptimizationEngine_NoActivationBelowThreshold(t *testing.T) {
	oe := NewOptimizationEngine(zaptest.NewLogger(t), DefaultConfig(), pendingCatalog())

	for _, rt := range []float64{60, 99.9, 100} {
		assert.Empty(t, oe.Tick(context.Background(), ResourceMetrics{ResponseTimeMs: rt}))
	}
	assert.Equal(t, 2, oe.PendingCount())
}

func TestOptimizationEngine_DefaultCatalog(t *testing.T) {
	oe := NewOptimizationEngine(zaptest.NewLogger(t), DefaultConfig(), DefaultCatalog())

	events := oe.Tick(context.Background(), ResourceMetrics{ResponseTimeMs: 150})
	require.Len(t, events, 1)
	assert.Equal(t, "opt3", events[0].Subject)
	assert.Contains(t, events[0].Message, "CDN Edge Distribution")
}

func TestOptimizationEngine_Disable(t *testing.T) {
	oe := NewOptimizationEngine(zaptest.NewLogger(t), DefaultConfig(), pendingCatalog())

	require.NoError(t, oe.Disable("cache"))
	events := oe.Tick(context.Background(), ResourceMetrics{ResponseTimeMs: 150})
	require.Len(t, events, 1)
	assert.Equal(t, "cdn", events[0].Subject)
	assert.Equal(t, OptimizationDisabled, oe.Records()[0].Status)

	assert.ErrorIs(t, oe.Disable("nope"), ErrNotFound)
}

func TestOptimizationEngine_CancelledTickDiscarded(t *testing.T) {
	oe := NewOptimizationEngine(zaptest.NewLogger(t), DefaultConfig(), pendingCatalog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, oe.Tick(ctx, ResourceMetrics{ResponseTimeMs: 150}))
	assert.Equal(t, 2, oe.PendingCount())
}

// Active records never return to pending, and each tick activates at most one.
func TestOptimizationEngine_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	catalog := make([]OptimizationRecord, 10)
	for i := range catalog {
		catalog[i] = OptimizationRecord{ID: string(rune('a' + i)), Status: OptimizationPending}
	}
	oe := NewOptimizationEngine(zaptest.NewLogger(t), DefaultConfig(), catalog)

	prev := oe.Records()
	for i := 0; i < 100; i++ {
		rt := ResponseTimeBounds.Min + rng.Float64()*(ResponseTimeBounds.Max-ResponseTimeBounds.Min)
		events := oe.Tick(context.Background(), ResourceMetrics{ResponseTimeMs: rt})
		next := oe.Records()

		activated := 0
		for j := range next {
			if prev[j].Status == OptimizationActive {
				require.Equal(t, OptimizationActive, next[j].Status)
			}
			if prev[j].Status == OptimizationPending && next[j].Status == OptimizationActive {
				activated++
			}
		}
		require.LessOrEqual(t, activated, 1)
		require.Len(t, events, activated)
		prev = next
	}
}
