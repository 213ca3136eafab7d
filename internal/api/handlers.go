package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"github.com/shizukutanaka/resalloc/internal/logging"
	"go.uber.org/zap"
)

// StatusResponse is the compact dashboard view of the controller.
type StatusResponse struct {
	Enabled              bool                        `json:"enabled"`
	Uptime               string                      `json:"uptime,omitempty"`
	ActiveInstances      int                         `json:"active_instances"`
	PoolSize             int                         `json:"pool_size"`
	PendingOptimizations int                         `json:"pending_optimizations"`
	Metrics              automation.ResourceMetrics  `json:"metrics"`
	Levels               map[string]automation.Level `json:"levels"`
	InstanceLevels       map[string]automation.Level `json:"instance_levels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, map[string]interface{}{
		"status":  "healthy",
		"enabled": s.controller.Enabled(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.controller.Snapshot()
	stats := s.controller.Stats()
	s.sendData(w, buildStatus(snap, stats))
}

func buildStatus(snap automation.Snapshot, stats automation.ControllerStats) StatusResponse {
	status := StatusResponse{
		Enabled:              snap.Enabled,
		ActiveInstances:      snap.ActiveCount(),
		PoolSize:             len(snap.Pool),
		PendingOptimizations: stats.PendingOpts,
		Metrics:              snap.Metrics,
		Levels: map[string]automation.Level{
			"cpu":           automation.UsageLevel(snap.Metrics.CPU),
			"memory":        automation.UsageLevel(snap.Metrics.Memory),
			"storage":       automation.UsageLevel(snap.Metrics.Storage),
			"network":       automation.UsageLevel(snap.Metrics.Network),
			"response_time": automation.LatencyLevel(snap.Metrics.ResponseTimeMs),
			"health":        automation.PerformanceLevel(automation.HealthScore(snap.Metrics)),
		},
		InstanceLevels: make(map[string]automation.Level, len(snap.Pool)),
	}
	if !stats.StartedAt.IsZero() {
		status.Uptime = time.Since(stats.StartedAt).Truncate(time.Second).String()
	}
	for _, inst := range snap.Pool {
		if inst.Status == automation.StatusActive {
			status.InstanceLevels[inst.ID] = automation.UsageLevel(inst.LoadPercent)
		}
	}
	return status
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.controller.Snapshot())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.controller.Summary())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.controller.Stats())
}

func (s *Server) handleSystemStart(w http.ResponseWriter, r *http.Request) {
	s.controller.Start()
	logging.FromContext(r.Context()).Info("Control loop enabled via API")
	s.sendData(w, map[string]bool{"enabled": s.controller.Enabled()})
}

func (s *Server) handleSystemStop(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop()
	logging.FromContext(r.Context()).Info("Control loop disabled via API")
	s.sendData(w, map[string]bool{"enabled": s.controller.Enabled()})
}

func (s *Server) handleDisableOptimization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.controller.DisableOptimization(id); err != nil {
		if errors.Is(err, automation.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, err.Error())
			return
		}
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logging.FromContext(r.Context()).Info("Optimization disabled via API", zap.String("id", id))
	s.sendData(w, map[string]string{"id": id, "status": string(automation.OptimizationDisabled)})
}

func (s *Server) handleTriggerTick(w http.ResponseWriter, r *http.Request) {
	name := automation.TaskName(mux.Vars(r)["name"])
	ran, err := s.controller.TriggerTick(name)
	if err != nil {
		if errors.Is(err, automation.ErrUnknownTask) {
			s.sendError(w, http.StatusNotFound, err.Error())
			return
		}
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ran {
		s.sendError(w, http.StatusConflict, "tick not run: control loop disabled or task busy")
		return
	}
	s.sendData(w, map[string]interface{}{"task": name, "ran": true})
}
