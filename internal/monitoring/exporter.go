package monitoring

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"go.uber.org/zap"
)

// Config defines metrics exporter configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	// Include Go runtime and process collectors
	RuntimeMetrics bool `yaml:"runtime_metrics"`
}

// DefaultConfig returns the exporter defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Namespace:      "resalloc",
		RuntimeMetrics: true,
	}
}

// Validate checks the exporter configuration.
func (c Config) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return errors.New("namespace is required when monitoring is enabled")
	}
	return nil
}

// Source is the read side of the control loop.
type Source interface {
	Snapshot() automation.Snapshot
	Stats() automation.ControllerStats
	OnEvent(handler automation.EventHandler) func()
}

// MetricsExporter publishes control loop state in Prometheus format. State
// gauges are read from the source at scrape time; event counters are fed by
// an event subscription.
type MetricsExporter struct {
	logger   *zap.Logger
	config   Config
	source   Source
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	unsubscribe func()
	closeOnce   sync.Once

	enabled        *prometheus.Desc
	utilization    *prometheus.Desc
	responseTime   *prometheus.Desc
	throughput     *prometheus.Desc
	connections    *prometheus.Desc
	instanceLoad   *prometheus.Desc
	instanceStatus *prometheus.Desc
	activeCount    *prometheus.Desc
	optimizations  *prometheus.Desc
	taskRuns       *prometheus.Desc
	taskSkipped    *prometheus.Desc
	transitions    *prometheus.Desc
	eventsDropped  *prometheus.Desc
}

// NewMetricsExporter creates an exporter with its own registry.
func NewMetricsExporter(logger *zap.Logger, config Config, source Source) (*MetricsExporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ns := config.Namespace
	me := &MetricsExporter{
		logger:   logger,
		config:   config,
		source:   source,
		registry: prometheus.NewRegistry(),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Transition events observed, by kind",
		}, []string{"kind"}),

		enabled: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "", "enabled"),
			"Whether the control loop is running", nil, nil),
		utilization: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "resource", "utilization_percent"),
			"Latest resource utilization sample", []string{"resource"}, nil),
		responseTime: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "", "response_time_milliseconds"),
			"Latest average response time", nil, nil),
		throughput: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "", "throughput_requests_per_second"),
			"Latest request throughput", nil, nil),
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "", "active_connections"),
			"Latest active connection count", nil, nil),
		instanceLoad: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "pool", "instance_load_percent"),
			"Load of each pool instance", []string{"instance"}, nil),
		instanceStatus: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "pool", "instance_status"),
			"Pool instance status, 1 for the current status", []string{"instance", "status"}, nil),
		activeCount: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "pool", "active_instances"),
			"Number of active pool instances", nil, nil),
		optimizations: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "", "optimizations"),
			"Optimization records by status", []string{"status"}, nil),
		taskRuns: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "task", "runs_total"),
			"Completed ticks per task", []string{"task"}, nil),
		taskSkipped: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "task", "skipped_total"),
			"Ticks skipped because the previous tick was still running", []string{"task"}, nil),
		transitions: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "task", "transitions_total"),
			"State transitions made per task", []string{"task"}, nil),
		eventsDropped: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "", "events_dropped_total"),
			"Events dropped because the dispatch buffer was full", nil, nil),
	}

	me.registry.MustRegister(me, me.events)
	if config.RuntimeMetrics {
		me.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	me.unsubscribe = source.OnEvent(func(e automation.Event) {
		me.events.WithLabelValues(string(e.Kind)).Inc()
	})

	logger.Info("Metrics exporter initialized", zap.String("namespace", ns))
	return me, nil
}

// Handler serves the registry.
func (me *MetricsExporter) Handler() http.Handler {
	return promhttp.HandlerFor(me.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry.
func (me *MetricsExporter) Registry() *prometheus.Registry {
	return me.registry
}

// Close stops counting events.
func (me *MetricsExporter) Close() {
	me.closeOnce.Do(me.unsubscribe)
}

// Describe implements prometheus.Collector.
func (me *MetricsExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- me.enabled
	ch <- me.utilization
	ch <- me.responseTime
	ch <- me.throughput
	ch <- me.connections
	ch <- me.instanceLoad
	ch <- me.instanceStatus
	ch <- me.activeCount
	ch <- me.optimizations
	ch <- me.taskRuns
	ch <- me.taskSkipped
	ch <- me.transitions
	ch <- me.eventsDropped
}

var instanceStatuses = []automation.InstanceStatus{
	automation.StatusActive,
	automation.StatusStandby,
	automation.StatusOffline,
}

var optimizationStatuses = []automation.OptimizationStatus{
	automation.OptimizationActive,
	automation.OptimizationPending,
	automation.OptimizationDisabled,
}

// Collect implements prometheus.Collector.
func (me *MetricsExporter) Collect(ch chan<- prometheus.Metric) {
	snap := me.source.Snapshot()
	stats := me.source.Stats()

	enabled := 0.0
	if snap.Enabled {
		enabled = 1
	}
	ch <- prometheus.MustNewConstMetric(me.enabled, prometheus.GaugeValue, enabled)

	m := snap.Metrics
	for resource, v := range map[string]float64{
		"cpu":     m.CPU,
		"memory":  m.Memory,
		"storage": m.Storage,
		"network": m.Network,
	} {
		ch <- prometheus.MustNewConstMetric(me.utilization, prometheus.GaugeValue, v, resource)
	}
	ch <- prometheus.MustNewConstMetric(me.responseTime, prometheus.GaugeValue, m.ResponseTimeMs)
	ch <- prometheus.MustNewConstMetric(me.throughput, prometheus.GaugeValue, m.ThroughputReqPerSec)
	ch <- prometheus.MustNewConstMetric(me.connections, prometheus.GaugeValue, float64(m.ActiveConnections))

	for _, inst := range snap.Pool {
		ch <- prometheus.MustNewConstMetric(me.instanceLoad, prometheus.GaugeValue, inst.LoadPercent, inst.ID)
		for _, status := range instanceStatuses {
			v := 0.0
			if inst.Status == status {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(me.instanceStatus, prometheus.GaugeValue, v, inst.ID, status.String())
		}
	}
	ch <- prometheus.MustNewConstMetric(me.activeCount, prometheus.GaugeValue, float64(snap.ActiveCount()))

	counts := make(map[automation.OptimizationStatus]int, len(optimizationStatuses))
	for _, opt := range snap.Optimizations {
		counts[opt.Status]++
	}
	for _, status := range optimizationStatuses {
		ch <- prometheus.MustNewConstMetric(me.optimizations, prometheus.GaugeValue, float64(counts[status]), string(status))
	}

	for name, ts := range stats.Tasks {
		task := string(name)
		ch <- prometheus.MustNewConstMetric(me.taskRuns, prometheus.CounterValue, float64(ts.Runs), task)
		ch <- prometheus.MustNewConstMetric(me.taskSkipped, prometheus.CounterValue, float64(ts.Skipped), task)
		ch <- prometheus.MustNewConstMetric(me.transitions, prometheus.CounterValue, float64(ts.Transitions), task)
	}
	ch <- prometheus.MustNewConstMetric(me.eventsDropped, prometheus.CounterValue, float64(stats.EventsDropped))
}
