// Package automation implements the autonomous resource allocation control
// loop: a metrics sampler, a load balancer pool manager and an optimization
// trigger engine, each running on its own cadence under a single Controller.
//
// The three periodic tasks own disjoint state:
//   - MetricsStore: the current ResourceMetrics, written only by the sampler
//   - PoolManager: load balancer instances, promoted and demoted on load
//   - OptimizationEngine: the optimization catalog, activated on latency
//
// Controller.Start and Controller.Stop toggle the loop. After Stop returns no
// tick can mutate any of the above.
package automation
