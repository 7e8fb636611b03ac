package core

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher owns a broker Connection and a registry of handlers keyed by
// topic. Every message the connection delivers is fanned out to the handlers
// registered for its topic.
type Dispatcher struct {
	conn        Connection
	logger      *zap.Logger
	matcher     Matcher
	middlewares []MiddlewareFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	closed  bool
}

// entry is pending while a subscribe or unsubscribe call for its topic is
// in flight; ready is closed once the call resolves.
type entry struct {
	ready    chan struct{}
	pending  bool
	handlers []Handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for diagnostics. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMatcher replaces the topic matcher. ExactMatcher is the default.
func WithMatcher(m Matcher) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.matcher = m
		}
	}
}

// New creates a Dispatcher bound to conn and installs its dispatch routine
// as the connection's message callback.
func New(conn Connection, opts ...Option) (*Dispatcher, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		conn:    conn,
		logger:  zap.NewNop(),
		matcher: ExactMatcher{},
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
	for _, fn := range opts {
		fn(d)
	}
	conn.OnMessage(d.dispatch)
	return d, nil
}

// Use registers middleware applied to handlers registered afterwards.
func (d *Dispatcher) Use(m MiddlewareFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, m)
}

// Register adds handler to topic. The first handler for a topic subscribes
// the connection to it; later handlers are appended without a broker call.
// If the subscribe fails, or the dispatcher is closed while it runs, the
// registry is left unchanged.
func (d *Dispatcher) Register(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if handler == nil {
		return ErrNilHandler
	}

	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return ErrClosed
		}
		h := applyMiddleware(handler, d.middlewares)

		e, ok := d.entries[topic]
		if ok && !e.pending {
			e.handlers = append(e.handlers, h)
			d.mu.Unlock()
			return nil
		}
		if ok {
			// A subscribe or unsubscribe is in flight; wait for it and look again.
			ready := e.ready
			d.mu.Unlock()
			select {
			case <-ready:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		e = &entry{ready: make(chan struct{}), pending: true}
		d.entries[topic] = e
		d.mu.Unlock()

		err := d.conn.Subscribe(ctx, topic)

		d.mu.Lock()
		closed := d.closed
		if err != nil || closed {
			delete(d.entries, topic)
		} else {
			e.pending = false
			e.handlers = []Handler{h}
			d.order = append(d.order, topic)
		}
		close(e.ready)
		d.mu.Unlock()

		if err != nil {
			return connErr("subscribe", topic, err)
		}
		if closed {
			return ErrClosed
		}
		d.logger.Debug("subscribed", zap.String("topic", topic))
		return nil
	}
}

// RegisterAll registers every entry concurrently. It fails if any
// registration fails; registrations that succeeded stay in effect.
func (d *Dispatcher) RegisterAll(ctx context.Context, regs []Registration) error {
	return fanOut(len(regs), func(i int) error {
		return d.Register(ctx, regs[i].Topic, regs[i].Handler)
	})
}

// Redirect republishes every payload received on topicIn to topicOut, verbatim.
func (d *Dispatcher) Redirect(ctx context.Context, topicIn, topicOut string) error {
	if topicOut == "" {
		return ErrEmptyTopic
	}
	err := d.Register(ctx, topicIn, func(ctx context.Context, payload []byte, _ string, d *Dispatcher) error {
		return d.Publish(ctx, topicOut, payload)
	})
	if err != nil {
		return err
	}
	d.logger.Debug("redirect installed", zap.String("from", topicIn), zap.String("to", topicOut))
	return nil
}

// RedirectAll installs every route concurrently, with the same partial
// failure semantics as RegisterAll.
func (d *Dispatcher) RedirectAll(ctx context.Context, routes []Route) error {
	return fanOut(len(routes), func(i int) error {
		return d.Redirect(ctx, routes[i].In, routes[i].Out)
	})
}

// Publish sends payload to topic. Options are forwarded to the connection untouched.
func (d *Dispatcher) Publish(ctx context.Context, topic string, payload []byte, opts ...PublishOption) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := d.conn.Publish(ctx, topic, payload, buildPublishOptions(opts)); err != nil {
		return connErr("publish", topic, err)
	}
	return nil
}

// Unregister unsubscribes from topic and drops all of its handlers.
// Unknown topics are ignored. If the unsubscribe fails the handlers are kept.
// Registrations for topic wait until the unsubscribe resolves.
func (d *Dispatcher) Unregister(ctx context.Context, topic string) error {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return ErrClosed
		}
		e, ok := d.entries[topic]
		if !ok {
			d.mu.Unlock()
			return nil
		}
		if e.pending {
			ready := e.ready
			d.mu.Unlock()
			select {
			case <-ready:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		e.pending = true
		e.ready = make(chan struct{})
		d.mu.Unlock()

		err := d.conn.Unsubscribe(ctx, topic)

		d.mu.Lock()
		if err != nil {
			e.pending = false
		} else {
			delete(d.entries, topic)
			for i, t := range d.order {
				if t == topic {
					d.order = append(d.order[:i:i], d.order[i+1:]...)
					break
				}
			}
		}
		close(e.ready)
		d.mu.Unlock()

		if err != nil {
			return connErr("unsubscribe", topic, err)
		}
		d.logger.Debug("unsubscribed", zap.String("topic", topic))
		return nil
	}
}

// Topics returns the subscribed topics in the order they were first registered.
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Close closes the underlying connection. Further Register and Publish
// calls fail with ErrClosed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	if err := d.conn.Close(); err != nil {
		return connErr("close", "", err)
	}
	return nil
}

// dispatch runs one dispatch cycle: every handler for topic is started in
// registration order, each in its own goroutine, and the cycle returns once
// all of them finish. Messages on topics without handlers are dropped.
func (d *Dispatcher) dispatch(topic string, payload []byte) error {
	handlers := d.handlersFor(topic)
	if len(handlers) == 0 {
		return nil
	}
	return fanOut(len(handlers), func(i int) error {
		return handlers[i](d.ctx, payload, topic, d)
	})
}

// handlersFor snapshots the handlers matching topic.
func (d *Dispatcher) handlersFor(topic string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, exact := d.matcher.(ExactMatcher); exact {
		// A pending subscribe has no handlers yet; a pending unsubscribe
		// keeps delivering until it resolves.
		e, ok := d.entries[topic]
		if !ok {
			return nil
		}
		out := make([]Handler, len(e.handlers))
		copy(out, e.handlers)
		return out
	}

	var out []Handler
	for _, filter := range d.order {
		if !d.matcher.Match(filter, topic) {
			continue
		}
		out = append(out, d.entries[filter].handlers...)
	}
	return out
}

// fanOut runs fn(0..n-1) concurrently, waits for all of them, and combines
// every returned error.
func fanOut(n int, fn func(i int) error) error {
	var g errgroup.Group
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			errs[i] = fn(i)
			return errs[i]
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	return multierr.Combine(errs...)
}
