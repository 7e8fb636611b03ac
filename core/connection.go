package core

import "context"

// MessageCallback receives every message delivered by a Connection,
// regardless of topic.
type MessageCallback func(topic string, payload []byte) error

// Connection defines the contract for broker client implementations.
// Each broker plugin must implement this interface.
type Connection interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	// Publish sends payload to topic. A nil opts means the connection's defaults.
	Publish(ctx context.Context, topic string, payload []byte, opts *PublishOptions) error
	// OnMessage installs the single callback for incoming messages.
	OnMessage(cb MessageCallback)
	Close() error
}

// PublishOptions carries broker-specific publish settings.
// Connections ignore the fields their protocol has no notion of.
type PublishOptions struct {
	QoS    byte
	Retain bool
}

// PublishOption configures a single Publish call.
type PublishOption func(*PublishOptions)

// WithQoS sets the MQTT quality of service level (0, 1 or 2).
func WithQoS(qos byte) PublishOption {
	return func(o *PublishOptions) { o.QoS = qos }
}

// WithRetain sets the retained flag.
func WithRetain(retain bool) PublishOption {
	return func(o *PublishOptions) { o.Retain = retain }
}

func buildPublishOptions(fns []PublishOption) *PublishOptions {
	if len(fns) == 0 {
		return nil
	}
	o := &PublishOptions{}
	for _, fn := range fns {
		fn(o)
	}
	return o
}
