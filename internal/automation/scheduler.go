package automation

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TaskName identifies one of the periodic tasks.
type TaskName string

const (
	TaskSampler      TaskName = "sampler"
	TaskPool         TaskName = "pool"
	TaskOptimization TaskName = "optimization"
)

// TaskStats counts tick outcomes for one task.
type TaskStats struct {
	Runs        uint64        `json:"runs"`
	Skipped     uint64        `json:"skipped"`
	Transitions uint64        `json:"transitions"`
	LastRun     time.Time     `json:"last_run"`
	LastTook    time.Duration `json:"last_took"`
}

// periodicTask runs fn on its own ticker. A tick never overlaps a previous
// tick of the same task: the ticker drops ticks while one is running, and
// manual ticks that arrive mid-run are skipped.
type periodicTask struct {
	name     TaskName
	logger   *zap.Logger
	interval atomic.Int64 // time.Duration
	fn       func(ctx context.Context) int

	inFlight atomic.Bool

	runs        atomic.Uint64
	skipped     atomic.Uint64
	transitions atomic.Uint64
	lastRun     atomic.Int64
	lastTook    atomic.Int64
}

func newPeriodicTask(logger *zap.Logger, name TaskName, interval time.Duration, fn func(ctx context.Context) int) *periodicTask {
	t := &periodicTask{
		name:   name,
		logger: logger.With(zap.String("task", string(name))),
		fn:     fn,
	}
	t.interval.Store(int64(interval))
	return t
}

// loop ticks until ctx is done.
func (t *periodicTask) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(t.interval.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runTick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runTick executes one tick unless another is in flight. It reports
// whether the tick ran.
func (t *periodicTask) runTick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !t.inFlight.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		t.logger.Debug("Tick skipped, previous tick still running")
		return false
	}
	defer t.inFlight.Store(false)

	start := time.Now()
	n := t.fn(ctx)
	took := time.Since(start)

	t.runs.Add(1)
	t.transitions.Add(uint64(n))
	t.lastRun.Store(start.UnixNano())
	t.lastTook.Store(int64(took))
	return true
}

func (t *periodicTask) currentInterval() time.Duration {
	return time.Duration(t.interval.Load())
}

func (t *periodicTask) stats() TaskStats {
	s := TaskStats{
		Runs:        t.runs.Load(),
		Skipped:     t.skipped.Load(),
		Transitions: t.transitions.Load(),
		LastTook:    time.Duration(t.lastTook.Load()),
	}
	if ns := t.lastRun.Load(); ns != 0 {
		s.LastRun = time.Unix(0, ns)
	}
	return s
}
