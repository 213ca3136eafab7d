package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockSampler struct {
	mock.Mock
}

func (m *mockSampler) Sample(ctx context.Context, prev ResourceMetrics) (ResourceMetrics, error) {
	args := m.Called(ctx, prev)
	return args.Get(0).(ResourceMetrics), args.Error(1)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func fastConfig() Config {
	config := DefaultConfig()
	config.SamplerInterval = 2 * time.Millisecond
	config.PoolInterval = 3 * time.Millisecond
	config.OptimizationInterval = 4 * time.Millisecond
	return config
}

func idleConfig() Config {
	config := DefaultConfig()
	config.SamplerInterval = time.Hour
	config.PoolInterval = time.Hour
	config.OptimizationInterval = time.Hour
	return config
}

func newTestController(t *testing.T, config Config, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(zaptest.NewLogger(t), config, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewController_Defaults(t *testing.T) {
	c := newTestController(t, DefaultConfig())

	snap := c.Snapshot()
	assert.False(t, snap.Enabled)
	assert.Equal(t, 45.0, snap.Metrics.CPU)
	assert.Equal(t, 2847, snap.Metrics.ActiveConnections)
	assert.Len(t, snap.Pool, 3)
	assert.Equal(t, 2, snap.ActiveCount())
	assert.Len(t, snap.Optimizations, 4)
	assert.Equal(t, DefaultConfig(), c.Config())
}

func TestNewController_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.UnderloadThreshold = 90

	_, err := NewController(zaptest.NewLogger(t), config)
	assert.Error(t, err)
}

func TestController_StartStopIdempotent(t *testing.T) {
	c := newTestController(t, idleConfig())
	rec := &eventRecorder{}
	c.OnEvent(rec.handle)

	c.Start()
	c.Start()
	assert.True(t, c.Enabled())
	assert.True(t, c.Snapshot().Enabled)
	assert.False(t, c.Stats().StartedAt.IsZero())

	c.Stop()
	c.Stop()
	assert.False(t, c.Enabled())

	c.Start()
	c.Stop()

	assert.Eventually(t, func() bool {
		return rec.count(EventSystemDisabled) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.count(EventSystemEnabled))
}

func TestController_NoMutationWhileDisabled(t *testing.T) {
	c := newTestController(t, fastConfig())
	before := c.Snapshot()

	time.Sleep(30 * time.Millisecond)
	after := c.Snapshot()

	assert.Equal(t, before.Metrics, after.Metrics)
	assert.Equal(t, before.Pool, after.Pool)
	assert.Equal(t, before.Optimizations, after.Optimizations)

	ran, err := c.TriggerTick(TaskPool)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestController_NoMutationAfterStop(t *testing.T) {
	c := newTestController(t, fastConfig())

	c.Start()
	assert.Eventually(t, func() bool {
		return c.Stats().Tasks[TaskSampler].Runs > 3
	}, time.Second, time.Millisecond)
	c.Stop()

	before := c.Snapshot()
	stats := c.Stats()
	time.Sleep(30 * time.Millisecond)
	after := c.Snapshot()

	assert.Equal(t, before.Metrics, after.Metrics)
	assert.Equal(t, before.Pool, after.Pool)
	assert.Equal(t, before.Optimizations, after.Optimizations)
	assert.Equal(t, stats.Tasks, c.Stats().Tasks)
}

func TestController_RunningLoopKeepsInvariants(t *testing.T) {
	c := newTestController(t, fastConfig())
	c.Start()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		snap := c.Snapshot()
		assertMetricsInBounds(t, snap.Metrics)
		assert.GreaterOrEqual(t, snap.ActiveCount(), DefaultConfig().ActiveFloor)
		time.Sleep(time.Millisecond)
	}
	c.Stop()
}

func TestController_SnapshotIsDeepCopy(t *testing.T) {
	c := newTestController(t, idleConfig())

	snap := c.Snapshot()
	snap.Pool[0].LoadPercent = 1
	snap.Pool[2].Status = StatusOffline
	snap.Optimizations[2].Status = OptimizationActive
	snap.Metrics.CPU = 99

	fresh := c.Snapshot()
	assert.Equal(t, DefaultPool(), fresh.Pool)
	assert.Equal(t, DefaultCatalog(), fresh.Optimizations)
	assert.Equal(t, 45.0, fresh.Metrics.CPU)
}

func TestController_TriggerTickPromotes(t *testing.T) {
	pool := DefaultPool()
	pool[0].LoadPercent = 85
	c := newTestController(t, idleConfig(), WithPool(pool), WithRandomSource(fixedSource(0.5)))
	rec := &eventRecorder{}
	c.OnEvent(rec.handle)

	c.Start()
	ran, err := c.TriggerTick(TaskPool)
	require.NoError(t, err)
	assert.True(t, ran)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.ActiveCount())
	assert.Equal(t, 25.0, snap.Pool[2].LoadPercent)
	assert.Equal(t, uint64(1), c.Stats().Tasks[TaskPool].Transitions)

	assert.Eventually(t, func() bool {
		return rec.count(EventPromoted) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestController_TriggerTickActivatesOptimization(t *testing.T) {
	seed := DefaultMetrics()
	seed.ResponseTimeMs = 150
	c := newTestController(t, idleConfig(), WithInitialMetrics(seed))
	c.Start()

	ran, err := c.TriggerTick(TaskOptimization)
	require.NoError(t, err)
	require.True(t, ran)

	snap := c.Snapshot()
	assert.Equal(t, OptimizationActive, snap.Optimizations[2].Status)
	assert.Equal(t, 0, c.Stats().PendingOpts)
}

func TestController_TriggerTickUnknownTask(t *testing.T) {
	c := newTestController(t, idleConfig())
	_, err := c.TriggerTick("bogus")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestController_SamplerErrorKeepsPrevious(t *testing.T) {
	sampler := &mockSampler{}
	sampler.On("Sample", mock.Anything, mock.Anything).Return(ResourceMetrics{}, errors.New("probe failed"))

	c := newTestController(t, idleConfig(), WithSampler(sampler))
	before := c.Snapshot().Metrics

	c.Start()
	ran, err := c.TriggerTick(TaskSampler)
	require.NoError(t, err)
	assert.True(t, ran)

	assert.Equal(t, before, c.Snapshot().Metrics)
	assert.Equal(t, 1, c.Summary().Samples)
	sampler.AssertNumberOfCalls(t, "Sample", 1)
}

func TestController_SamplerResultIsClampedAndRecorded(t *testing.T) {
	sampler := &mockSampler{}
	sampler.On("Sample", mock.Anything, mock.Anything).Return(ResourceMetrics{CPU: 120, Memory: 50, Storage: 50, Network: 50, ResponseTimeMs: 50, ThroughputReqPerSec: 1000, ActiveConnections: 2000}, nil)

	c := newTestController(t, idleConfig(), WithSampler(sampler))
	c.Start()
	_, err := c.TriggerTick(TaskSampler)
	require.NoError(t, err)

	m := c.Snapshot().Metrics
	assert.Equal(t, 95.0, m.CPU)
	assert.False(t, m.SampledAt.IsZero())
	assert.Equal(t, 2, c.Summary().Samples)
}

func TestController_HandlerMayStop(t *testing.T) {
	pool := DefaultPool()
	pool[0].LoadPercent = 85
	c := newTestController(t, idleConfig(), WithPool(pool), WithRandomSource(fixedSource(0.5)))

	c.OnEvent(func(ev Event) {
		if ev.Kind == EventPromoted {
			c.Stop()
		}
	})

	c.Start()
	_, err := c.TriggerTick(TaskPool)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !c.Enabled() }, time.Second, 5*time.Millisecond)
}

func TestController_HandlerPanicIsContained(t *testing.T) {
	c := newTestController(t, idleConfig())
	rec := &eventRecorder{}

	c.OnEvent(func(Event) { panic("boom") })
	c.OnEvent(rec.handle)

	c.Start()
	assert.Eventually(t, func() bool {
		return rec.count(EventSystemEnabled) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestController_Unsubscribe(t *testing.T) {
	c := newTestController(t, idleConfig())
	rec := &eventRecorder{}
	unsubscribe := c.OnEvent(rec.handle)
	unsubscribe()
	unsubscribe()

	marker := &eventRecorder{}
	c.OnEvent(marker.handle)
	c.Start()

	assert.Eventually(t, func() bool {
		return marker.count(EventSystemEnabled) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rec.count(EventSystemEnabled))
}

func TestController_ApplyConfig(t *testing.T) {
	c := newTestController(t, idleConfig(), WithRandomSource(fixedSource(0.5)))
	c.Start()

	lowered := idleConfig()
	lowered.OverloadThreshold = 60
	require.NoError(t, c.ApplyConfig(lowered))
	assert.Equal(t, 60.0, c.Config().OverloadThreshold)

	// lb1 sits at 67% which is now overloaded.
	_, err := c.TriggerTick(TaskPool)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Snapshot().ActiveCount())

	faster := lowered
	faster.SamplerInterval = 2 * time.Millisecond
	require.NoError(t, c.ApplyConfig(faster))
	assert.True(t, c.Enabled())
	assert.Eventually(t, func() bool {
		return c.Stats().Tasks[TaskSampler].Runs > 2
	}, time.Second, time.Millisecond)

	invalid := faster
	invalid.ActiveFloor = 0
	assert.Error(t, c.ApplyConfig(invalid))
	assert.Equal(t, 2, c.Config().ActiveFloor)
}

func TestController_DisableOptimizationAndMarkOffline(t *testing.T) {
	c := newTestController(t, idleConfig())

	require.NoError(t, c.DisableOptimization("opt1"))
	assert.Equal(t, OptimizationDisabled, c.Snapshot().Optimizations[0].Status)
	assert.ErrorIs(t, c.DisableOptimization("missing"), ErrNotFound)

	require.NoError(t, c.MarkOffline("lb3"))
	assert.Equal(t, StatusOffline, c.Snapshot().Pool[2].Status)
}

func TestController_ConcurrentStartStop(t *testing.T) {
	c := newTestController(t, fastConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if (i+j)%2 == 0 {
					c.Start()
				} else {
					c.Stop()
				}
				_ = c.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	c.Stop()
	assert.False(t, c.Enabled())
}
