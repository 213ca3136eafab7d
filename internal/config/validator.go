package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shizukutanaka/resalloc/internal/api"
)

// Validator enforces cross-field rules on a loaded Config.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns an error wrapping ErrInvalidConfig for the first failing
// section.
func (v *Validator) Validate(cfg *Config) error {
	if err := cfg.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Automation.Validate(); err != nil {
		return fmt.Errorf("%w: automation: %w", ErrInvalidConfig, err)
	}
	if err := v.validateSampler(&cfg.Sampler); err != nil {
		return fmt.Errorf("%w: sampler: %w", ErrInvalidConfig, err)
	}
	if err := v.validateAPI(&cfg.API); err != nil {
		return fmt.Errorf("%w: api: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Monitoring.Validate(); err != nil {
		return fmt.Errorf("%w: monitoring: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (v *Validator) validateSampler(cfg *SamplerConfig) error {
	switch cfg.Source {
	case SamplerSimulated:
		return nil
	case SamplerHost:
		if cfg.Host.LinkCapacityMbps <= 0 {
			return errors.New("host link_capacity_mbps must be positive")
		}
		return nil
	default:
		return fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func (v *Validator) validateAPI(cfg *api.Config) error {
	if !cfg.Enabled {
		return nil
	}
	if err := v.validateListenAddress(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr: %w", err)
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if cfg.RateLimit <= 0 {
		return errors.New("rate_limit must be positive")
	}
	if cfg.RateBurst < 1 {
		return errors.New("rate_burst must be at least 1")
	}
	return nil
}

// validateListenAddress checks if a string is a valid network listen address.
func (v *Validator) validateListenAddress(addr string) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address format: %s", addr)
	}
	if _, err := net.LookupPort("tcp", strings.TrimSpace(port)); err != nil {
		return fmt.Errorf("invalid port: %s", addr)
	}
	return nil
}
