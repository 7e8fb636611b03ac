package mqtt

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"
)

// Option configures the MQTT connection.
type Option func(*options)

type options struct {
	// Session
	clientID       string
	username       string
	password       string
	cleanSession   bool
	autoReconnect  bool
	keepAlive      time.Duration
	connectTimeout time.Duration
	tlsConfig      *tls.Config

	// Delivery
	subscribeQoS  byte
	publishQoS    byte
	publishRetain bool
	inboxSize     int
	quiesce       uint

	logger *zap.Logger
}

func defaults() options {
	return options{
		cleanSession:   true,
		keepAlive:      30 * time.Second,
		connectTimeout: 30 * time.Second,
		inboxSize:      256,
		quiesce:        250, // ms
		logger:         zap.NewNop(),
	}
}

// WithClientID sets the MQTT client identifier. A random one is generated when empty.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// WithCredentials sets the username and password sent on connect.
func WithCredentials(user, pass string) Option {
	return func(o *options) {
		o.username = user
		o.password = pass
	}
}

// WithCleanSession controls whether the broker discards session state on connect.
func WithCleanSession(clean bool) Option {
	return func(o *options) { o.cleanSession = clean }
}

// WithAutoReconnect lets the client library reconnect after a lost connection.
func WithAutoReconnect(enabled bool) Option {
	return func(o *options) { o.autoReconnect = enabled }
}

// WithKeepAlive sets the keepalive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// WithConnectTimeout bounds how long the network connect may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithTLSConfig sets the TLS configuration for mqtts:// and ssl:// brokers.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithSubscribeQoS sets the QoS requested for every subscription.
func WithSubscribeQoS(qos byte) Option {
	return func(o *options) { o.subscribeQoS = qos }
}

// WithPublishDefaults sets the QoS and retain flag used when Publish gets no options.
func WithPublishDefaults(qos byte, retain bool) Option {
	return func(o *options) {
		o.publishQoS = qos
		o.publishRetain = retain
	}
}

// WithInboxSize sets the initial capacity of the dispatch queue. The queue
// grows past it; a warning is logged each time the backlog reaches n.
func WithInboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.inboxSize = n
		}
	}
}

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
