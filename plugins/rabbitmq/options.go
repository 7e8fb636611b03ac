package rabbitmq

import (
	"strings"

	"go.uber.org/zap"
)

// Option configures the RabbitMQ connection.
type Option func(*options)

type options struct {
	exchange     string
	exchangeType string
	queuePrefix  string

	durable    bool
	autoDelete bool

	prefetch int
	requeue  bool

	logger *zap.Logger
}

func defaults() options {
	return options{
		exchangeType: "topic",
		queuePrefix:  "mqttengine.",
		durable:      true,
		prefetch:     10,
		requeue:      true,
		logger:       zap.NewNop(),
	}
}

var toRoutingKey = strings.NewReplacer("/", ".", "+", "*")

// RoutingKey maps an MQTT topic or filter onto AMQP topic exchange syntax:
// "/" becomes "." and the single-level wildcard "+" becomes "*".
// "#" means the same in both.
func RoutingKey(topic string) string {
	return toRoutingKey.Replace(topic)
}

// Topic reverses RoutingKey for a concrete routing key. Dots that were part
// of the original topic cannot be told apart from separators.
func Topic(routingKey string) string {
	return strings.ReplaceAll(routingKey, ".", "/")
}

// WithExchange publishes to and binds queues on the named exchange. Without
// one, messages go through the default exchange and wildcards do not match.
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		if kind != "" {
			o.exchangeType = kind
		}
	}
}

// WithQueuePrefix sets the prefix of the queue declared for each subscription.
func WithQueuePrefix(prefix string) Option {
	return func(o *options) { o.queuePrefix = prefix }
}

// WithDurable controls whether exchanges and queues survive a broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithAutoDelete deletes a queue once its last consumer is cancelled.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithPrefetch sets how many unacknowledged deliveries the broker sends ahead.
func WithPrefetch(n int) Option {
	return func(o *options) { o.prefetch = n }
}

// WithRequeue controls whether deliveries whose dispatch failed are requeued.
func WithRequeue(requeue bool) Option {
	return func(o *options) { o.requeue = requeue }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
