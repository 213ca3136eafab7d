package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for unknown instance or optimization IDs.
	ErrNotFound = errors.New("not found")
	// ErrUnknownTask is returned by TriggerTick for an unknown task name.
	ErrUnknownTask = errors.New("unknown task")
)

// Option customizes a Controller at construction.
type Option func(*controllerOptions)

type controllerOptions struct {
	sampler Sampler
	rand    RandomSource
	pool    []LoadBalancerInstance
	catalog []OptimizationRecord
	metrics *ResourceMetrics
}

// WithSampler replaces the simulated metrics sampler.
func WithSampler(s Sampler) Option {
	return func(o *controllerOptions) { o.sampler = s }
}

// WithRandomSource sets the source used for simulated drift.
func WithRandomSource(src RandomSource) Option {
	return func(o *controllerOptions) { o.rand = &lockedSource{src: src} }
}

// WithPool sets the initial pool membership.
func WithPool(pool []LoadBalancerInstance) Option {
	return func(o *controllerOptions) { o.pool = pool }
}

// WithCatalog sets the initial optimization catalog.
func WithCatalog(catalog []OptimizationRecord) Option {
	return func(o *controllerOptions) { o.catalog = catalog }
}

// WithInitialMetrics sets the seed metrics record.
func WithInitialMetrics(m ResourceMetrics) Option {
	return func(o *controllerOptions) { o.metrics = &m }
}

// Controller is the control loop orchestrator and the only entry point for
// external callers.
type Controller struct {
	logger *zap.Logger

	config   Config
	configMu sync.RWMutex

	// State groups, one lock each
	metrics   *MetricsStore
	history   *History
	pool      *PoolManager
	optimizer *OptimizationEngine
	sampler   Sampler

	bus   *EventBus
	tasks []*periodicTask

	// Lifecycle
	enabled     atomic.Bool
	startedAt   atomic.Int64
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// ControllerStats reports lifecycle and per-task counters.
type ControllerStats struct {
	Enabled         bool                   `json:"enabled"`
	StartedAt       time.Time              `json:"started_at,omitempty"`
	Tasks           map[TaskName]TaskStats `json:"tasks"`
	EventsPublished uint64                 `json:"events_published"`
	EventsDropped   uint64                 `json:"events_dropped"`
	PendingOpts     int                    `json:"pending_optimizations"`
}

// NewController builds the control loop in the disabled state.
func NewController(logger *zap.Logger, config Config, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid automation config: %w", err)
	}

	o := controllerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rand == nil {
		o.rand = newDefaultSource()
	}
	if o.sampler == nil {
		o.sampler = NewSimulatedSampler(o.rand)
	}
	if o.pool == nil {
		o.pool = DefaultPool()
	}
	if o.catalog == nil {
		o.catalog = DefaultCatalog()
	}
	seed := DefaultMetrics()
	if o.metrics != nil {
		seed = *o.metrics
	}
	if seed.SampledAt.IsZero() {
		seed.SampledAt = time.Now()
	}

	c := &Controller{
		logger:    logger,
		config:    config,
		metrics:   NewMetricsStore(seed),
		history:   NewHistory(config.HistorySize),
		pool:      NewPoolManager(logger.Named("pool"), config, o.pool, o.rand),
		optimizer: NewOptimizationEngine(logger.Named("optimizer"), config, o.catalog),
		sampler:   o.sampler,
		bus:       NewEventBus(logger.Named("events"), config.EventBuffer),
	}
	c.history.Record(c.metrics.Load())

	c.tasks = []*periodicTask{
		newPeriodicTask(logger, TaskSampler, config.SamplerInterval, c.sampleTick),
		newPeriodicTask(logger, TaskPool, config.PoolInterval, c.poolTick),
		newPeriodicTask(logger, TaskOptimization, config.OptimizationInterval, c.optimizationTick),
	}

	return c, nil
}

// Start enables the control loop and spawns the periodic tasks. Calling it
// while enabled has no effect.
func (c *Controller) Start() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.enabled.Load() {
		return
	}

	c.enabled.Store(true)
	c.startedAt.Store(time.Now().UnixNano())
	c.spawnTasks()

	c.logger.Info("Control loop started",
		zap.Duration("sampler_interval", c.tasks[0].currentInterval()),
		zap.Duration("pool_interval", c.tasks[1].currentInterval()),
		zap.Duration("optimization_interval", c.tasks[2].currentInterval()),
	)
	c.bus.Publish(newEvent(EventSystemEnabled, "", "autonomous resource allocation enabled"))
}

// Stop disables the control loop. When it returns no tick is running and
// none will mutate state until the next Start. Calling it while stopped has
// no effect.
func (c *Controller) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.enabled.Load() {
		return
	}

	c.enabled.Store(false)
	c.haltTasks()
	c.startedAt.Store(0)

	stats := c.statsLocked()
	c.logger.Info("Control loop stopped",
		zap.Uint64("pool_transitions", stats.Tasks[TaskPool].Transitions),
		zap.Uint64("optimizations_activated", stats.Tasks[TaskOptimization].Transitions),
		zap.Uint64("events_dropped", stats.EventsDropped),
	)
	c.bus.Publish(newEvent(EventSystemDisabled, "", "autonomous resource allocation disabled"))
}

// Close stops the loop and releases the event dispatcher.
func (c *Controller) Close() {
	c.Stop()
	c.bus.Close()
}

// Enabled reports whether the loop is running.
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Enabled:       c.enabled.Load(),
		Metrics:       c.metrics.Load(),
		Pool:          c.pool.Instances(),
		Optimizations: c.optimizer.Records(),
		TakenAt:       time.Now(),
	}
}

// OnEvent subscribes handler to transition events. Handlers run on the
// event dispatcher goroutine, never on a task goroutine, so they may call
// Start or Stop. The returned function unsubscribes.
func (c *Controller) OnEvent(handler EventHandler) func() {
	return c.bus.Subscribe(handler)
}

// Summary aggregates the retained metrics history.
func (c *Controller) Summary() MetricsSummary {
	return c.history.Summary()
}

// DisableOptimization retires an optimization. It is an administrative
// action outside the automatic lifecycle.
func (c *Controller) DisableOptimization(id string) error {
	return c.optimizer.Disable(id)
}

// MarkOffline takes a pool instance out of service. It is a fault-injection
// hook for operators and tests.
func (c *Controller) MarkOffline(id string) error {
	return c.pool.MarkOffline(id)
}

// TriggerTick runs one tick of the named task immediately. It reports false
// when the loop is disabled or the task is already mid-tick.
func (c *Controller) TriggerTick(name TaskName) (bool, error) {
	task := c.task(name)
	if task == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	c.lifecycleMu.Lock()
	if !c.enabled.Load() {
		c.lifecycleMu.Unlock()
		return false, nil
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.lifecycleMu.Unlock()
	defer c.wg.Done()

	return task.runTick(ctx), nil
}

// ApplyConfig swaps thresholds in place and restarts running tasks whose
// interval changed. EventBuffer and HistorySize only apply at construction.
func (c *Controller) ApplyConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid automation config: %w", err)
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.configMu.Lock()
	c.config = config
	c.configMu.Unlock()

	limits := config.thresholds()
	c.pool.setThresholds(limits)
	c.optimizer.setThresholds(limits)

	intervals := map[TaskName]time.Duration{
		TaskSampler:      config.SamplerInterval,
		TaskPool:         config.PoolInterval,
		TaskOptimization: config.OptimizationInterval,
	}
	changed := false
	for _, t := range c.tasks {
		if t.currentInterval() != intervals[t.name] {
			t.interval.Store(int64(intervals[t.name]))
			changed = true
		}
	}

	if changed && c.enabled.Load() {
		c.haltTasks()
		c.spawnTasks()
	}

	c.logger.Info("Configuration applied",
		zap.Int("active_floor", config.ActiveFloor),
		zap.Float64("overload_threshold", config.OverloadThreshold),
		zap.Float64("underload_threshold", config.UnderloadThreshold),
		zap.Float64("response_time_threshold", config.ResponseTimeThreshold),
		zap.Bool("tasks_restarted", changed && c.enabled.Load()),
	)
	return nil
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	return c.config
}

// Stats returns lifecycle and per-task counters.
func (c *Controller) Stats() ControllerStats {
	return c.statsLocked()
}

// Private methods

// spawnTasks must be called with lifecycleMu held.
func (c *Controller) spawnTasks() {
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel

	for _, t := range c.tasks {
		c.wg.Add(1)
		go func(t *periodicTask) {
			defer c.wg.Done()
			t.loop(ctx)
		}(t)
	}
}

// haltTasks must be called with lifecycleMu held.
func (c *Controller) haltTasks() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Controller) task(name TaskName) *periodicTask {
	for _, t := range c.tasks {
		if t.name == name {
			return t
		}
	}
	return nil
}

func (c *Controller) statsLocked() ControllerStats {
	stats := ControllerStats{
		Enabled:         c.enabled.Load(),
		Tasks:           make(map[TaskName]TaskStats, len(c.tasks)),
		EventsPublished: c.bus.Published(),
		EventsDropped:   c.bus.Dropped(),
		PendingOpts:     c.optimizer.PendingCount(),
	}
	if ns := c.startedAt.Load(); ns != 0 {
		stats.StartedAt = time.Unix(0, ns)
	}
	for _, t := range c.tasks {
		stats.Tasks[t.name] = t.stats()
	}
	return stats
}

func (c *Controller) sampleTick(ctx context.Context) int {
	if !c.enabled.Load() {
		return 0
	}
	prev := c.metrics.Load()
	next, err := c.sampler.Sample(ctx, prev)
	if err != nil {
		c.logger.Warn("Metrics sample failed, keeping previous snapshot", zap.Error(err))
		return 0
	}
	if ctx.Err() != nil {
		return 0
	}
	if next.SampledAt.IsZero() {
		next.SampledAt = time.Now()
	}
	c.metrics.Store(next)
	c.history.Record(c.metrics.Load())
	return 0
}

func (c *Controller) poolTick(ctx context.Context) int {
	if !c.enabled.Load() {
		return 0
	}
	events := c.pool.Tick(ctx, c.metrics.Load())
	c.bus.Publish(events...)
	return len(events)
}

func (c *Controller) optimizationTick(ctx context.Context) int {
	if !c.enabled.Load() {
		return 0
	}
	events := c.optimizer.Tick(ctx, c.metrics.Load())
	c.bus.Publish(events...)
	return len(events)
}
