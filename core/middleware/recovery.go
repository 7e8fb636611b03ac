package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine/core"
)

// Recovery returns middleware that recovers from panics in handlers,
// logs the stack trace, and returns the panic as an error.
func Recovery(logger *zap.Logger) core.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, payload []byte, topic string, d *core.Dispatcher) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered",
						zap.String("topic", topic),
						zap.Any("panic", r),
						zap.Stack("stack"))
					err = fmt.Errorf("mqttengine: panic recovered: %v", r)
				}
			}()
			return next(ctx, payload, topic, d)
		}
	}
}
