package nats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (core.Connection, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("mqttengine/nats: at least one server URL is required")
		}
		return New(cfg.Brokers[0], optsFromConfig(cfg)...)
	})
}

// Connection implements core.Connection for core NATS subjects.
//
// Design decisions:
//   - One NATS connection per Connection instance.
//   - Topics map onto subjects with Subject, so MQTT wildcards become
//     NATS ones.
//   - One subscription per subject; NATS runs each subscription's callback
//     on its own goroutine, so delivery order is kept per subject.
//   - At-most-once delivery; there is no ack or redelivery.
//   - Close drains the connection so in-flight callbacks finish.
type Connection struct {
	conn *nats.Conn
	opts options

	callback atomic.Pointer[core.MessageCallback]

	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	closed bool
}

// New connects to a NATS server. url is a standard NATS URL (nats://host:port).
func New(url string, fns ...Option) (*Connection, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	nc, err := nats.Connect(url, opts.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("mqttengine/nats: connect to %q: %w", url, err)
	}
	opts.logger.Debug("session established", zap.String("broker", nc.ConnectedUrlRedacted()))

	return &Connection{
		conn: nc,
		opts: opts,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// OnMessage installs the callback for every received message.
func (c *Connection) OnMessage(cb core.MessageCallback) {
	c.callback.Store(&cb)
}

// Subscribe subscribes to a subject and flushes so the server has
// registered interest before returning. The flush runs without the lock.
func (c *Connection) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrConnectionClosed
	}
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return nil
	}
	sub, err := c.conn.Subscribe(Subject(topic), c.receiver(topic))
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("mqttengine/nats: subscribe %q: %w", topic, err)
	}
	c.subs[topic] = sub
	c.mu.Unlock()

	if err := c.conn.FlushWithContext(ctx); err != nil {
		c.mu.Lock()
		if c.subs[topic] == sub {
			delete(c.subs, topic)
		}
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return fmt.Errorf("mqttengine/nats: subscribe %q: flush: %w", topic, err)
	}
	return nil
}

// receiver reports messages under topic, or under the topic recovered from
// the subject when topic is a filter.
func (c *Connection) receiver(topic string) nats.MsgHandler {
	filter := isFilter(topic)
	return func(m *nats.Msg) {
		cb := c.callback.Load()
		if cb == nil || *cb == nil {
			return
		}
		name := topic
		if filter {
			name = Topic(m.Subject)
		}
		if err := (*cb)(name, m.Data); err != nil {
			c.opts.logger.Warn("dispatch failed", zap.String("topic", name), zap.Error(err))
		}
	}
}

// Unsubscribe removes the subscription for a subject.
func (c *Connection) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	sub, ok := c.subs[topic]
	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("mqttengine/nats: unsubscribe %q: %w", topic, err)
	}
	delete(c.subs, topic)
	return nil
}

// Publish sends payload to Subject(topic). Publish options have no NATS
// equivalent and are ignored.
func (c *Connection) Publish(ctx context.Context, topic string, payload []byte, _ *core.PublishOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrConnectionClosed
	}
	c.mu.Unlock()

	if err := c.conn.Publish(Subject(topic), payload); err != nil {
		return fmt.Errorf("mqttengine/nats: publish to %q: %w", topic, err)
	}
	if c.opts.flushOnPublish {
		if err := c.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("mqttengine/nats: publish to %q: flush: %w", topic, err)
		}
	}
	return nil
}

// Close drains all subscriptions and closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("mqttengine/nats: drain: %w", err)
	}
	return nil
}

// optsFromConfig extracts options from broker.Config.
func optsFromConfig(cfg broker.Config) []Option {
	var opts []Option
	if cfg.ClientID != "" {
		opts = append(opts, WithName(cfg.ClientID))
	}
	if cfg.Username != "" {
		opts = append(opts, WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Extra == nil {
		return opts
	}
	if v, ok := cfg.Extra["flush_on_publish"].(bool); ok {
		opts = append(opts, WithFlushOnPublish(v))
	}
	if v, ok := cfg.Extra["logger"].(*zap.Logger); ok {
		opts = append(opts, WithLogger(v))
	}
	return opts
}

var _ core.Connection = (*Connection)(nil)
