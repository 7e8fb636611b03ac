package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine/core"
)

// Logging returns middleware that logs message processing duration and errors.
func Logging(logger *zap.Logger) core.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, payload []byte, topic string, d *core.Dispatcher) error {
			start := time.Now()
			err := next(ctx, payload, topic, d)
			fields := []zap.Field{
				zap.String("topic", topic),
				zap.Int("bytes", len(payload)),
				zap.Duration("elapsed", time.Since(start)),
			}

			if err != nil {
				logger.Error("handler failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("handled", fields...)
			}
			return err
		}
	}
}
