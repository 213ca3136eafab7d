package automation

import (
	"fmt"
	"time"
)

// ResourceMetrics is a point-in-time view of system resource usage.
// Records are immutable once published to a MetricsStore.
type ResourceMetrics struct {
	CPU                 float64   `json:"cpu" yaml:"cpu"`
	Memory              float64   `json:"memory" yaml:"memory"`
	Storage             float64   `json:"storage" yaml:"storage"`
	Network             float64   `json:"network" yaml:"network"`
	ResponseTimeMs      float64   `json:"response_time_ms" yaml:"response_time_ms"`
	ThroughputReqPerSec float64   `json:"throughput_req_per_sec" yaml:"throughput_req_per_sec"`
	ActiveConnections   int       `json:"active_connections" yaml:"active_connections"`
	SampledAt           time.Time `json:"sampled_at" yaml:"sampled_at"`
}

// InstanceStatus is the lifecycle state of a load balancer instance.
type InstanceStatus int

const (
	StatusStandby InstanceStatus = iota
	StatusActive
	StatusOffline
)

func (s InstanceStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusStandby:
		return "standby"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name so JSON and YAML output stay readable.
func (s InstanceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *InstanceStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = StatusActive
	case "standby":
		*s = StatusStandby
	case "offline":
		*s = StatusOffline
	default:
		return fmt.Errorf("unknown instance status %q", string(text))
	}
	return nil
}

// LoadBalancerInstance is one member of the load balancer pool.
type LoadBalancerInstance struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	Status            InstanceStatus `json:"status" yaml:"status"`
	LoadPercent       float64        `json:"load_percent" yaml:"load_percent"`
	RequestsServed    uint64         `json:"requests_served" yaml:"requests_served"`
	AvgResponseTimeMs float64        `json:"avg_response_time_ms" yaml:"avg_response_time_ms"`
}

// OptimizationCategory groups optimizations by the layer they tune.
type OptimizationCategory string

const (
	CategoryCache            OptimizationCategory = "cache"
	CategoryCompression      OptimizationCategory = "compression"
	CategoryEdgeDistribution OptimizationCategory = "edge_distribution"
	CategoryDatabaseTuning   OptimizationCategory = "database_tuning"
	CategoryQueryTuning      OptimizationCategory = "query_tuning"
)

// Impact is informational and never gates activation.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// OptimizationStatus is the lifecycle state of an optimization.
type OptimizationStatus string

const (
	OptimizationPending  OptimizationStatus = "pending"
	OptimizationActive   OptimizationStatus = "active"
	OptimizationDisabled OptimizationStatus = "disabled"
)

// OptimizationRecord is one entry of the optimization catalog.
type OptimizationRecord struct {
	ID          string               `json:"id" yaml:"id"`
	Description string               `json:"description" yaml:"description"`
	Category    OptimizationCategory `json:"category" yaml:"category"`
	Impact      Impact               `json:"impact" yaml:"impact"`
	Status      OptimizationStatus   `json:"status" yaml:"status"`
	ActivatedAt time.Time            `json:"activated_at,omitempty" yaml:"activated_at,omitempty"`
}

// Snapshot is a deep copy of the controller state for external readers.
type Snapshot struct {
	Enabled       bool                   `json:"enabled" yaml:"enabled"`
	Metrics       ResourceMetrics        `json:"metrics" yaml:"metrics"`
	Pool          []LoadBalancerInstance `json:"pool" yaml:"pool"`
	Optimizations []OptimizationRecord   `json:"optimizations" yaml:"optimizations"`
	TakenAt       time.Time              `json:"taken_at" yaml:"taken_at"`
}

// ActiveCount returns the number of active instances in the snapshot.
func (s Snapshot) ActiveCount() int {
	return countStatus(s.Pool, StatusActive)
}

// DefaultMetrics returns the seed metrics used at construction.
func DefaultMetrics() ResourceMetrics {
	return ResourceMetrics{
		CPU:                 45,
		Memory:              62,
		Storage:             38,
		Network:             71,
		ResponseTimeMs:      85,
		ThroughputReqPerSec: 1250,
		ActiveConnections:   2847,
	}
}

// DefaultPool returns the seed pool membership.
func DefaultPool() []LoadBalancerInstance {
	return []LoadBalancerInstance{
		{ID: "lb1", Name: "Load Balancer Alpha", Status: StatusActive, LoadPercent: 67, RequestsServed: 3245, AvgResponseTimeMs: 42},
		{ID: "lb2", Name: "Load Balancer Beta", Status: StatusActive, LoadPercent: 34, RequestsServed: 1876, AvgResponseTimeMs: 38},
		{ID: "lb3", Name: "Load Balancer Gamma", Status: StatusStandby},
	}
}

// DefaultCatalog returns the seed optimization catalog.
func DefaultCatalog() []OptimizationRecord {
	return []OptimizationRecord{
		{ID: "opt1", Description: "Redis Cache Optimization", Category: CategoryCache, Impact: ImpactHigh, Status: OptimizationActive},
		{ID: "opt2", Description: "Gzip Response Compression", Category: CategoryCompression, Impact: ImpactMedium, Status: OptimizationActive},
		{ID: "opt3", Description: "CDN Edge Distribution", Category: CategoryEdgeDistribution, Impact: ImpactHigh, Status: OptimizationPending},
		{ID: "opt4", Description: "Database Query Optimization", Category: CategoryDatabaseTuning, Impact: ImpactHigh, Status: OptimizationActive},
	}
}

func countStatus(pool []LoadBalancerInstance, status InstanceStatus) int {
	n := 0
	for _, inst := range pool {
		if inst.Status == status {
			n++
		}
	}
	return n
}
