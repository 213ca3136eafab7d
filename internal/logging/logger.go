package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the root logger from config.
func New(config Config) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	writer, err := openWriter(config)
	if err != nil {
		return nil, err
	}
	return newWithWriter(config, zapcore.AddSync(writer)), nil
}

func newWithWriter(config Config, writer zapcore.WriteSyncer) *zap.Logger {
	level, _ := zapcore.ParseLevel(config.Level)

	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(config.buildEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(config.buildEncoderConfig())
	}

	core := zapcore.NewCore(encoder, writer, level)
	if config.Sampling.Enabled {
		core = zapcore.NewSamplerWithOptions(core, time.Second, config.Sampling.Initial, config.Sampling.Thereafter)
	}

	options := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if config.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if config.Development {
		options = append(options, zap.Development())
	}
	return zap.New(core, options...)
}

func openWriter(config Config) (io.Writer, error) {
	switch config.OutputPath {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	file := &lumberjack.Logger{
		Filename:   config.OutputPath,
		MaxSize:    config.Rotation.MaxSize,
		MaxBackups: config.Rotation.MaxBackups,
		MaxAge:     config.Rotation.MaxAge,
		Compress:   config.Rotation.Compress,
	}
	// Surface permission problems at startup instead of on the first write.
	if _, err := file.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputPath, err)
	}
	return file, nil
}

// WithComponent adds component context
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}

// WithRequestID adds request tracking
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}
