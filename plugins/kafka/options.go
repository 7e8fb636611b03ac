package kafka

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Option configures the Kafka connection.
type Option func(*options)

type options struct {
	topicName func(string) string
	logger    *zap.Logger
	dialer    *kafka.Dialer

	// publishing
	balancer     kafka.Balancer
	batchSize    int
	batchTimeout time.Duration
	async        bool

	// consuming
	maxBytes    int
	maxWait     time.Duration
	startOffset int64
}

func defaults() options {
	return options{
		topicName:    TopicName,
		logger:       zap.NewNop(),
		balancer:     &kafka.Hash{},
		batchSize:    1,
		batchTimeout: 10 * time.Millisecond,
		maxBytes:     1 << 20,
		maxWait:      250 * time.Millisecond,
		startOffset:  kafka.LastOffset,
	}
}

// TopicName maps an MQTT-style topic to a legal Kafka topic name by
// replacing level separators with dots: "sensors/temp" becomes "sensors.temp".
func TopicName(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// WithTopicName replaces TopicName. fn must be injective or distinct
// topics will share a Kafka topic.
func WithTopicName(fn func(string) string) Option {
	return func(o *options) {
		if fn != nil {
			o.topicName = fn
		}
	}
}

// WithBatching sets how many messages the writer buffers and for how long.
// The defaults flush every message so Publish returns once it is written.
func WithBatching(size int, timeout time.Duration) Option {
	return func(o *options) {
		o.batchSize = size
		o.batchTimeout = timeout
	}
}

// WithAsync enables fire-and-forget writes. Publish then never reports
// delivery errors.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithBalancer sets the partition balancer. Messages are keyed by topic, so
// the default hash balancer keeps each topic on one partition and in order.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithFetch tunes reader fetches.
func WithFetch(maxBytes int, maxWait time.Duration) Option {
	return func(o *options) {
		o.maxBytes = maxBytes
		o.maxWait = maxWait
	}
}

// WithStartOffset sets where a reader without a consumer group starts
// (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}

// WithDialer sets a dialer for TLS or SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
