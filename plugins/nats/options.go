package nats

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Option configures the NATS connection.
type Option func(*options)

type options struct {
	name           string
	user           string
	pass           string
	timeout        time.Duration
	flushOnPublish bool
	logger         *zap.Logger
}

func defaults() options {
	return options{
		name:           "mqttengine",
		timeout:        nats.DefaultTimeout,
		flushOnPublish: true,
		logger:         zap.NewNop(),
	}
}

func (o options) natsOptions() []nats.Option {
	opts := []nats.Option{nats.Name(o.name), nats.Timeout(o.timeout)}
	if o.user != "" {
		opts = append(opts, nats.UserInfo(o.user, o.pass))
	}
	return opts
}

// WithName sets the connection name reported to the server.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithCredentials sets the username and password.
func WithCredentials(user, pass string) Option {
	return func(o *options) {
		o.user = user
		o.pass = pass
	}
}

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithFlushOnPublish controls whether Publish waits for the server to
// acknowledge the write with a PING/PONG round trip.
func WithFlushOnPublish(flush bool) Option {
	return func(o *options) { o.flushOnPublish = flush }
}

// WithLogger sets the logger used for dispatch failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
