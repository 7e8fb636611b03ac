package middleware

import (
	"context"
	"time"

	"github.com/miladsoleymani/mqttengine/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// MessageProcessed records that a handler finished processing a message
	// delivered on topic. err is nil on success.
	MessageProcessed(topic string, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing metrics to the given collector.
func Metrics(collector MetricsCollector) core.MiddlewareFunc {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, payload []byte, topic string, d *core.Dispatcher) error {
			start := time.Now()
			err := next(ctx, payload, topic, d)
			collector.MessageProcessed(topic, time.Since(start), err)
			return err
		}
	}
}
