package logging

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is a private type to prevent collisions with other packages' context keys.
type contextKey string

const loggerKey = contextKey("logger")

// ToContext embeds a zap.Logger into the provided context.
func ToContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves a zap.Logger from the context.
// If no logger is found in the context, it returns the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.L()
}
