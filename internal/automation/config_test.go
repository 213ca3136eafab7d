package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.PoolInterval = 0 }},
		{"negative interval", func(c *Config) { c.SamplerInterval = -time.Second }},
		{"zero floor", func(c *Config) { c.ActiveFloor = 0 }},
		{"inverted thresholds", func(c *Config) { c.UnderloadThreshold = 85 }},
		{"overload above 100", func(c *Config) { c.OverloadThreshold = 120 }},
		{"seed load out of range", func(c *Config) { c.PromotionSeedLoad = 101 }},
		{"zero response threshold", func(c *Config) { c.ResponseTimeThreshold = 0 }},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }},
		{"negative history", func(c *Config) { c.HistorySize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}
