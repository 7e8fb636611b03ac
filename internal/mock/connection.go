package mock

import (
	"context"
	"sync"

	"github.com/miladsoleymani/mqttengine/core"
)

// Connection is a test double for core.Connection.
type Connection struct {
	mu           sync.Mutex
	callback     core.MessageCallback
	subscribed   []string
	unsubscribed []string
	published    []PublishedMessage
	closed       bool

	// SubscribeErr, when set, is returned for topics it reports an error for.
	SubscribeErr   func(topic string) error
	UnsubscribeErr error
	PublishErr     error

	// SubscribeHook and UnsubscribeHook run first in their call, without
	// the lock held.
	SubscribeHook   func(topic string)
	UnsubscribeHook func(topic string)
}

// PublishedMessage records a message sent through Publish.
type PublishedMessage struct {
	Topic   string
	Payload []byte
	Options *core.PublishOptions
}

func NewConnection() *Connection {
	return &Connection{}
}

func (c *Connection) Subscribe(_ context.Context, topic string) error {
	if c.SubscribeHook != nil {
		c.SubscribeHook(topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	if c.SubscribeErr != nil {
		return c.SubscribeErr(topic)
	}
	return nil
}

func (c *Connection) Unsubscribe(_ context.Context, topic string) error {
	if c.UnsubscribeHook != nil {
		c.UnsubscribeHook(topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UnsubscribeErr != nil {
		return c.UnsubscribeErr
	}
	c.unsubscribed = append(c.unsubscribed, topic)
	return nil
}

func (c *Connection) Publish(_ context.Context, topic string, payload []byte, opts *core.PublishOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, PublishedMessage{Topic: topic, Payload: payload, Options: opts})
	return nil
}

func (c *Connection) OnMessage(cb core.MessageCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Deliver simulates an incoming message and returns the dispatch result.
func (c *Connection) Deliver(topic string, payload []byte) error {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb == nil {
		return nil
	}
	return cb(topic, payload)
}

// Subscribed returns every topic passed to Subscribe, including failed calls.
func (c *Connection) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

// Unsubscribed returns every topic successfully unsubscribed.
func (c *Connection) Unsubscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.unsubscribed))
	copy(out, c.unsubscribed)
	return out
}

// Published returns all messages sent via Publish.
func (c *Connection) Published() []PublishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PublishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

// IsClosed reports whether Close was called.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
