package core

import "context"

// Handler processes one message delivered on topic. The Dispatcher it was
// registered on is passed so handlers can publish or register further
// handlers from inside a dispatch cycle.
//
//	d.Register(ctx, "sensors/temp", func(ctx context.Context, payload []byte, topic string, d *core.Dispatcher) error {
//	    log.Printf("%s = %s", topic, payload)
//	    return nil
//	})
type Handler func(ctx context.Context, payload []byte, topic string, d *Dispatcher) error

// MiddlewareFunc wraps a Handler to add cross-cutting behavior.
//
//	func MyMiddleware() core.MiddlewareFunc {
//	    return func(next core.Handler) core.Handler {
//	        return func(ctx context.Context, payload []byte, topic string, d *core.Dispatcher) error {
//	            // before
//	            err := next(ctx, payload, topic, d)
//	            // after
//	            return err
//	        }
//	    }
//	}
type MiddlewareFunc func(Handler) Handler

// Registration pairs a topic with a handler for RegisterAll.
type Registration struct {
	Topic   string
	Handler Handler
}

// Route describes a redirect from In to Out for RedirectAll.
type Route struct {
	In  string `yaml:"in"`
	Out string `yaml:"out"`
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h Handler, mws []MiddlewareFunc) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
