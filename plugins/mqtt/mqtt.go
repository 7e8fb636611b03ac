package mqtt

import (
	"context"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/core"
)

func init() {
	broker.Register("mqtt", func(cfg broker.Config) (core.Connection, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("mqttengine/mqtt: at least one broker URL is required")
		}
		opts := optsFromConfig(cfg)
		return New(context.Background(), cfg.Brokers[0], opts...)
	})
}

// subackFailure is the SUBACK return code for a rejected subscription.
const subackFailure = 0x80

// newClient is replaced in tests.
var newClient = paho.NewClient

// Connection implements core.Connection for MQTT using the Eclipse Paho client.
//
// Design decisions:
//   - One Paho client per Connection; every subscription uses the client's
//     default publish handler, so overlapping filters deliver a message once.
//   - Received messages are appended to an unbounded queue drained by a
//     single goroutine. Receive never blocks, so the Paho router keeps
//     reading acks while handlers publish or subscribe. Delivery order is
//     the broker's.
//   - Publish uses the configured defaults unless options are supplied.
//   - Close disconnects the client and tells the dispatch goroutine to
//     exit. It does not wait for it, so handlers may call it.
type Connection struct {
	client paho.Client
	opts   options

	notify chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	queue    []inbound
	callback core.MessageCallback
	closed   bool
}

type inbound struct {
	topic   string
	payload []byte
}

// New connects to an MQTT broker. url takes the form scheme://host:port, where
// scheme is one of mqtt, tcp, mqtts, ssl, ws or wss.
func New(ctx context.Context, url string, fns ...Option) (*Connection, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	if opts.clientID == "" {
		opts.clientID = "mqttengine-" + uuid.NewString()
	}

	c := newConnection(opts)

	po := paho.NewClientOptions().
		AddBroker(url).
		SetClientID(opts.clientID).
		SetCleanSession(opts.cleanSession).
		SetAutoReconnect(opts.autoReconnect).
		SetKeepAlive(opts.keepAlive).
		SetConnectTimeout(opts.connectTimeout).
		SetDefaultPublishHandler(c.Receive).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			opts.logger.Warn("connection lost", zap.String("broker", url), zap.Error(err))
		})
	if opts.username != "" {
		po.SetUsername(opts.username).SetPassword(opts.password)
	}
	if opts.tlsConfig != nil {
		po.SetTLSConfig(opts.tlsConfig)
	}

	c.client = newClient(po)
	if err := wait(ctx, c.client.Connect()); err != nil {
		// Abort a connect still in flight.
		c.client.Disconnect(0)
		c.stop()
		return nil, fmt.Errorf("mqttengine/mqtt: connect to %q: %w", url, err)
	}
	opts.logger.Debug("session established",
		zap.String("broker", url),
		zap.String("client_id", opts.clientID))
	return c, nil
}

// NewWithClient wraps an already connected Paho client. Incoming messages
// are only seen if the client's options route them to Receive.
func NewWithClient(client paho.Client, fns ...Option) *Connection {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	c := newConnection(opts)
	c.client = client
	return c
}

func newConnection(opts options) *Connection {
	c := &Connection{
		opts:   opts,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		queue:  make([]inbound, 0, opts.inboxSize),
	}
	go c.dispatchLoop()
	return c
}

// Receive is a paho.MessageHandler feeding the dispatch queue. It never blocks.
func (c *Connection) Receive(_ paho.Client, msg paho.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, inbound{topic: msg.Topic(), payload: msg.Payload()})
	backlog := len(c.queue)
	c.mu.Unlock()

	if backlog == c.opts.inboxSize {
		c.opts.logger.Warn("dispatch backlog", zap.Int("queued", backlog))
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// dispatchLoop hands queued messages to the callback one at a time.
func (c *Connection) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.notify:
		}

		c.mu.Lock()
		batch := c.queue
		c.queue = make([]inbound, 0, c.opts.inboxSize)
		c.mu.Unlock()

		for _, in := range batch {
			c.mu.Lock()
			cb, closed := c.callback, c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			if cb == nil {
				continue
			}
			if err := cb(in.topic, in.payload); err != nil {
				c.opts.logger.Warn("dispatch failed",
					zap.String("topic", in.topic),
					zap.Error(err))
			}
		}
	}
}

// OnMessage installs the callback for every received message.
func (c *Connection) OnMessage(cb core.MessageCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Subscribe subscribes to a topic filter and waits for the SUBACK.
func (c *Connection) Subscribe(ctx context.Context, topic string) error {
	if c.isClosed() {
		return core.ErrConnectionClosed
	}
	tok := c.client.Subscribe(topic, c.opts.subscribeQoS, nil)
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("mqttengine/mqtt: subscribe %q: %w", topic, err)
	}
	if st, ok := tok.(*paho.SubscribeToken); ok {
		if code, ok := st.Result()[topic]; ok && code == subackFailure {
			return fmt.Errorf("mqttengine/mqtt: subscribe %q: rejected by broker", topic)
		}
	}
	return nil
}

// Unsubscribe removes a topic filter subscription.
func (c *Connection) Unsubscribe(ctx context.Context, topic string) error {
	if c.isClosed() {
		return core.ErrConnectionClosed
	}
	if err := wait(ctx, c.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("mqttengine/mqtt: unsubscribe %q: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic. A nil opts uses the connection defaults.
func (c *Connection) Publish(ctx context.Context, topic string, payload []byte, opts *core.PublishOptions) error {
	if c.isClosed() {
		return core.ErrConnectionClosed
	}
	qos, retain := c.opts.publishQoS, c.opts.publishRetain
	if opts != nil {
		qos, retain = opts.QoS, opts.Retain
	}
	if qos > 2 {
		return fmt.Errorf("mqttengine/mqtt: publish to %q: invalid qos %d", topic, qos)
	}
	if err := wait(ctx, c.client.Publish(topic, qos, retain, payload)); err != nil {
		return fmt.Errorf("mqttengine/mqtt: publish to %q: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker and stops dispatching. Queued messages
// that have not been dispatched are dropped.
func (c *Connection) Close() error {
	if !c.stop() {
		return nil
	}
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(c.opts.quiesce)
	}
	return nil
}

// stop marks the connection closed and releases the dispatch goroutine.
// It reports false if the connection was already closed.
func (c *Connection) stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.queue = nil
	close(c.done)
	return true
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// optsFromConfig extracts options from broker.Config.
func optsFromConfig(cfg broker.Config) []Option {
	var opts []Option
	if cfg.ClientID != "" {
		opts = append(opts, WithClientID(cfg.ClientID))
	}
	if cfg.Username != "" {
		opts = append(opts, WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Extra == nil {
		return opts
	}
	if v, ok := cfg.Extra["qos"].(int); ok {
		opts = append(opts, WithSubscribeQoS(byte(v)))
	}
	if v, ok := cfg.Extra["auto_reconnect"].(bool); ok {
		opts = append(opts, WithAutoReconnect(v))
	}
	if v, ok := cfg.Extra["clean_session"].(bool); ok {
		opts = append(opts, WithCleanSession(v))
	}
	if v, ok := cfg.Extra["logger"].(*zap.Logger); ok {
		opts = append(opts, WithLogger(v))
	}
	return opts
}

var _ core.Connection = (*Connection)(nil)
