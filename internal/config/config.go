package config

import (
	"errors"

	"github.com/shizukutanaka/resalloc/internal/api"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"github.com/shizukutanaka/resalloc/internal/logging"
	"github.com/shizukutanaka/resalloc/internal/monitoring"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Sampler sources.
const (
	SamplerSimulated = "simulated"
	SamplerHost      = "host"
)

// Config is the complete application configuration.
type Config struct {
	Logging    logging.Config    `yaml:"logging"`
	Automation automation.Config `yaml:"automation"`
	Sampler    SamplerConfig     `yaml:"sampler"`
	API        api.Config        `yaml:"api"`
	Monitoring monitoring.Config `yaml:"monitoring"`
}

// SamplerConfig selects where resource metrics come from.
type SamplerConfig struct {
	Source string                       `yaml:"source"` // simulated or host
	Host   automation.HostSamplerConfig `yaml:"host"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Logging:    logging.DefaultConfig(),
		Automation: automation.DefaultConfig(),
		Sampler: SamplerConfig{
			Source: SamplerSimulated,
			Host:   automation.DefaultHostSamplerConfig(),
		},
		API:        api.DefaultConfig(),
		Monitoring: monitoring.DefaultConfig(),
	}
}
