package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OptimizationEngine owns the optimization catalog and activates pending
// entries when response time degrades.
type OptimizationEngine struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	catalog []OptimizationRecord
	limits  thresholds
}

// NewOptimizationEngine creates an engine over a copy of catalog.
func NewOptimizationEngine(logger *zap.Logger, config Config, catalog []OptimizationRecord) *OptimizationEngine {
	records := make([]OptimizationRecord, len(catalog))
	copy(records, catalog)
	return &OptimizationEngine{
		logger:  logger,
		now:     time.Now,
		catalog: records,
		limits:  config.thresholds(),
	}
}

// Tick activates at most one pending optimization, the first in catalog
// order, when metrics.ResponseTimeMs exceeds the threshold.
func (oe *OptimizationEngine) Tick(ctx context.Context, metrics ResourceMetrics) []Event {
	if ctx.Err() != nil {
		return nil
	}

	oe.mu.Lock()
	defer oe.mu.Unlock()

	if metrics.ResponseTimeMs <= oe.limits.responseTimeThreshold {
		return nil
	}

	for i := range oe.catalog {
		rec := &oe.catalog[i]
		if rec.Status != OptimizationPending {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		rec.Status = OptimizationActive
		rec.ActivatedAt = oe.now()

		oe.logger.Info("Optimization activated",
			zap.String("id", rec.ID),
			zap.String("category", string(rec.Category)),
			zap.String("impact", string(rec.Impact)),
			zap.Float64("response_time_ms", metrics.ResponseTimeMs),
		)
		return []Event{newEvent(EventOptimizationActivated, rec.ID,
			fmt.Sprintf("activated optimization %s: response time %.1fms above %.0fms",
				rec.Description, metrics.ResponseTimeMs, oe.limits.responseTimeThreshold))}
	}
	return nil
}

// Records returns a copy of the catalog in catalog order.
func (oe *OptimizationEngine) Records() []OptimizationRecord {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	out := make([]OptimizationRecord, len(oe.catalog))
	copy(out, oe.catalog)
	return out
}

// Disable is the administrative action that retires an optimization. The
// control loop never calls it.
func (oe *OptimizationEngine) Disable(id string) error {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	for i := range oe.catalog {
		if oe.catalog[i].ID != id {
			continue
		}
		oe.catalog[i].Status = OptimizationDisabled
		oe.logger.Info("Optimization disabled", zap.String("id", id))
		return nil
	}
	return fmt.Errorf("optimization %s: %w", id, ErrNotFound)
}

// PendingCount returns the number of pending optimizations.
func (oe *OptimizationEngine) PendingCount() int {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	n := 0
	for _, rec := range oe.catalog {
		if rec.Status == OptimizationPending {
			n++
		}
	}
	return n
}

func (oe *OptimizationEngine) setThresholds(t thresholds) {
	oe.mu.Lock()
	oe.limits = t
	oe.mu.Unlock()
}
