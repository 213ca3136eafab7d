package automation

import (
	"errors"
	"fmt"
	"time"
)

// Config contains control loop settings.
type Config struct {
	// Cadences
	SamplerInterval      time.Duration `yaml:"sampler_interval"`
	PoolInterval         time.Duration `yaml:"pool_interval"`
	OptimizationInterval time.Duration `yaml:"optimization_interval"`

	// Pool rules
	ActiveFloor        int     `yaml:"active_floor"`
	OverloadThreshold  float64 `yaml:"overload_threshold"`  // load %
	UnderloadThreshold float64 `yaml:"underload_threshold"` // load %
	PromotionSeedLoad  float64 `yaml:"promotion_seed_load"`

	// Optimization rules
	ResponseTimeThreshold float64 `yaml:"response_time_threshold"` // ms

	// Plumbing
	EventBuffer int `yaml:"event_buffer"`
	HistorySize int `yaml:"history_size"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		SamplerInterval:      2 * time.Second,
		PoolInterval:         8 * time.Second,
		OptimizationInterval: 12 * time.Second,

		ActiveFloor:        2,
		OverloadThreshold:  80,
		UnderloadThreshold: 20,
		PromotionSeedLoad:  25,

		ResponseTimeThreshold: 100,

		EventBuffer: 256,
		HistorySize: 120,
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.SamplerInterval <= 0 || c.PoolInterval <= 0 || c.OptimizationInterval <= 0 {
		return errors.New("task intervals must be positive")
	}
	if c.ActiveFloor < 1 {
		return fmt.Errorf("active_floor must be at least 1, got %d", c.ActiveFloor)
	}
	if c.UnderloadThreshold < 0 || c.OverloadThreshold > 100 {
		return errors.New("load thresholds must lie within [0,100]")
	}
	if c.UnderloadThreshold >= c.OverloadThreshold {
		return fmt.Errorf("underload_threshold (%.1f) must be below overload_threshold (%.1f)",
			c.UnderloadThreshold, c.OverloadThreshold)
	}
	if c.PromotionSeedLoad < 0 || c.PromotionSeedLoad > 100 {
		return fmt.Errorf("promotion_seed_load must lie within [0,100], got %.1f", c.PromotionSeedLoad)
	}
	if c.ResponseTimeThreshold <= 0 {
		return errors.New("response_time_threshold must be positive")
	}
	if c.EventBuffer < 1 {
		return errors.New("event_buffer must be at least 1")
	}
	if c.HistorySize < 0 {
		return errors.New("history_size cannot be negative")
	}
	return nil
}

// thresholds is the subset of Config read on every decision tick.
type thresholds struct {
	activeFloor           int
	overload              float64
	underload             float64
	promotionSeedLoad     float64
	responseTimeThreshold float64
}

func (c Config) thresholds() thresholds {
	return thresholds{
		activeFloor:           c.ActiveFloor,
		overload:              c.OverloadThreshold,
		underload:             c.UnderloadThreshold,
		promotionSeedLoad:     c.PromotionSeedLoad,
		responseTimeThreshold: c.ResponseTimeThreshold,
	}
}
