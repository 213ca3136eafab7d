package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config defines all settings for logging.
type Config struct {
	// Level is the minimum log level that will be captured.
	Level string `yaml:"level"`

	// Format specifies the log output format. Can be "json" or "console".
	Format string `yaml:"format"`

	// OutputPath is "stdout", "stderr", or a file path. File output is rotated.
	OutputPath string `yaml:"output_path"`

	// Rotation applies to file output only.
	Rotation RotationConfig `yaml:"rotation"`

	// Development enables development-friendly logging (e.g., colored console output).
	Development bool `yaml:"development"`

	EnableCaller bool `yaml:"enable_caller"`

	// Sampling configures log sampling to reduce log volume.
	Sampling SamplingConfig `yaml:"sampling"`
}

// RotationConfig defines the settings for log file rotation.
type RotationConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int `yaml:"max_size_mb"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `yaml:"max_age_days"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `yaml:"max_backups"`

	// Compress determines if the rotated log files should be compressed.
	Compress bool `yaml:"compress"`
}

// SamplingConfig defines the settings for log sampling.
type SamplingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Initial is the number of messages to log per second before sampling kicks in.
	Initial int `yaml:"initial"`
	// Thereafter logs every Nth message after the initial burst.
	Thereafter int `yaml:"thereafter"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
		EnableCaller: true,
		Sampling: SamplingConfig{
			Enabled:    false,
			Initial:    100,
			Thereafter: 100,
		},
	}
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid log format %q: must be json or console", c.Format)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("log output_path is required")
	}
	return nil
}

func (c Config) buildEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if c.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if !c.EnableCaller {
		encoderConfig.CallerKey = zapcore.OmitKey
	}
	return encoderConfig
}
