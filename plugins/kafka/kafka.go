package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (core.Connection, error) {
		return New(cfg.Brokers, cfg.ClientID, optsFromConfig(cfg)...)
	})
}

// ErrWildcard is returned when subscribing to an MQTT wildcard filter.
var ErrWildcard = errors.New("wildcard filters are not supported")

// Connection implements core.Connection for Apache Kafka using segmentio/kafka-go.
//
// Design decisions:
//   - One kafka.Writer shared across all Publish calls (thread-safe by library).
//   - One kafka.Reader per subscribed topic, each fetching on its own goroutine,
//     so delivery order is kept per partition.
//   - With a consumer group, offsets are committed after a successful dispatch;
//     a failed dispatch leaves the offset uncommitted.
//   - Unsubscribe and Close cancel readers without waiting for them; each
//     reader goroutine closes its own reader on exit. Handlers may call both.
type Connection struct {
	brokers   []string
	group     string
	opts      options
	writer    messageWriter
	newReader func(kafka.ReaderConfig) messageReader

	mu       sync.Mutex
	callback core.MessageCallback
	readers  map[string]context.CancelFunc
	closed   bool
}

// messageReader is the part of *kafka.Reader the connection uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the connection uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// New creates a Kafka Connection. group is the consumer group ID; empty
// means every reader consumes from the start offset without commits.
func New(brokers []string, group string, fns ...Option) (*Connection, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("mqttengine/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		BatchTimeout: opts.batchTimeout,
		Async:        opts.async,
		RequiredAcks: kafka.RequireAll,
	}
	if opts.dialer != nil {
		w.Transport = &kafka.Transport{
			TLS:  opts.dialer.TLS,
			SASL: opts.dialer.SASLMechanism,
		}
	}

	return &Connection{
		brokers: brokers,
		group:   group,
		opts:    opts,
		writer:  w,
		newReader: func(cfg kafka.ReaderConfig) messageReader {
			return kafka.NewReader(cfg)
		},
		readers: make(map[string]context.CancelFunc),
	}, nil
}

// OnMessage installs the callback for every received message.
func (c *Connection) OnMessage(cb core.MessageCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Subscribe starts a reader for the topic. Kafka has no subscription
// handshake, so it returns as soon as the reader is running. Wildcard
// filters are rejected.
func (c *Connection) Subscribe(_ context.Context, topic string) error {
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("mqttengine/kafka: subscribe %q: %w", topic, ErrWildcard)
	}
	cfg := kafka.ReaderConfig{
		Brokers:  c.brokers,
		Topic:    c.opts.topicName(topic),
		GroupID:  c.group,
		MinBytes: 1,
		MaxBytes: c.opts.maxBytes,
		MaxWait:  c.opts.maxWait,
	}
	if c.opts.dialer != nil {
		cfg.Dialer = c.opts.dialer
	}
	if c.group == "" {
		cfg.StartOffset = c.opts.startOffset
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if _, ok := c.readers[topic]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := c.newReader(cfg)
	c.readers[topic] = cancel

	go func() {
		defer func() {
			if err := r.Close(); err != nil {
				c.opts.logger.Warn("close reader failed", zap.String("topic", topic), zap.Error(err))
			}
		}()
		c.consumeLoop(ctx, topic, r)
	}()
	return nil
}

// consumeLoop fetches messages and dispatches them to the callback.
func (c *Connection) consumeLoop(ctx context.Context, topic string, r messageReader) {
	for {
		raw, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // unsubscribed or closed
			}
			c.opts.logger.Warn("fetch failed", zap.String("topic", topic), zap.Error(err))
			return
		}

		c.mu.Lock()
		cb := c.callback
		c.mu.Unlock()
		if cb == nil {
			continue
		}

		if err := cb(topic, raw.Value); err != nil {
			// Offset is NOT committed; the message is redelivered after
			// rebalance or restart.
			c.opts.logger.Warn("dispatch failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		if c.group != "" {
			if err := r.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
				c.opts.logger.Warn("commit failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
}

// Unsubscribe stops the topic's reader. The reader closes in the background.
func (c *Connection) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	cancel, ok := c.readers[topic]
	delete(c.readers, topic)
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Publish writes payload to the mapped topic, keyed by the original topic.
// Publish options have no Kafka equivalent and are ignored.
func (c *Connection) Publish(ctx context.Context, topic string, payload []byte, _ *core.PublishOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrConnectionClosed
	}
	c.mu.Unlock()

	err := c.writer.WriteMessages(ctx, kafka.Message{
		Topic: c.opts.topicName(topic),
		Key:   []byte(topic),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("mqttengine/kafka: publish to %q: %w", topic, err)
	}
	return nil
}

// Close stops all readers and flushes the writer.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	readers := c.readers
	c.readers = make(map[string]context.CancelFunc)
	c.mu.Unlock()

	for _, cancel := range readers {
		cancel()
	}
	if err := c.writer.Close(); err != nil {
		return fmt.Errorf("mqttengine/kafka: close writer: %w", err)
	}
	return nil
}

// optsFromConfig extracts options from the broker.Config.Extra map.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["async"].(bool); ok && v {
		opts = append(opts, WithAsync(true))
	}
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatching(v, time.Second))
	}
	if v, ok := cfg.Extra["max_bytes"].(int); ok {
		opts = append(opts, WithFetch(v, 500*time.Millisecond))
	}
	if v, ok := cfg.Extra["logger"].(*zap.Logger); ok {
		opts = append(opts, WithLogger(v))
	}
	return opts
}

var _ core.Connection = (*Connection)(nil)
