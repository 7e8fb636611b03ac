// Package mqttengine provides the top-level API: connect to an MQTT broker,
// register handlers per topic and declare topic-to-topic redirects.
//
//	d, err := mqttengine.Connect(ctx, "localhost", 0)
//	if err != nil {
//	    return err
//	}
//	d.Register(ctx, "sensors/temp", handler)
//	d.Redirect(ctx, "in/x", "out/y")
//
// It re-exports core types for convenience.
package mqttengine

import (
	"context"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/core"
	"github.com/miladsoleymani/mqttengine/plugins/mqtt"
)

// DefaultPort is the MQTT port used when Connect is given port 0.
const DefaultPort = 1883

// Re-export core types at the package level for ergonomic usage.
type (
	Dispatcher      = core.Dispatcher
	Handler         = core.Handler
	MiddlewareFunc  = core.MiddlewareFunc
	Connection      = core.Connection
	ConnectionError = core.ConnectionError
	Registration    = core.Registration
	Route           = core.Route
	PublishOption   = core.PublishOption
)

// Option configures Connect.
type Option func(*settings)

type settings struct {
	logger     *zap.Logger
	dispatcher []core.Option
	mqtt       []mqtt.Option
}

// WithLogger sets the logger for both the dispatcher and the MQTT connection.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithDispatcherOptions passes options through to core.New.
func WithDispatcherOptions(opts ...core.Option) Option {
	return func(s *settings) { s.dispatcher = append(s.dispatcher, opts...) }
}

// WithMQTTOptions passes options through to the MQTT connection.
func WithMQTTOptions(opts ...mqtt.Option) Option {
	return func(s *settings) { s.mqtt = append(s.mqtt, opts...) }
}

// BrokerURL returns the broker address for host and port. Port 0 means DefaultPort.
func BrokerURL(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return "mqtt://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Connect opens an MQTT connection to host and returns a Dispatcher bound
// to it. A failure to connect is returned as a *ConnectionError and no
// Dispatcher is created.
func Connect(ctx context.Context, host string, port int, opts ...Option) (*Dispatcher, error) {
	s := settings{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&s)
	}

	url := BrokerURL(host, port)
	mqttOpts := append([]mqtt.Option{mqtt.WithLogger(s.logger)}, s.mqtt...)
	conn, err := mqtt.New(ctx, url, mqttOpts...)
	if err != nil {
		return nil, &core.ConnectionError{Op: "connect", Err: err}
	}

	return bind(conn, url, s)
}

// Open connects through the broker factory registered under name and
// returns a Dispatcher bound to it. Plugins other than mqtt register
// themselves when imported:
//
//	import _ "github.com/miladsoleymani/mqttengine/plugins/nats"
//
//	d, err := mqttengine.Open("nats", broker.Config{Brokers: []string{"nats://localhost:4222"}})
//
// The logger set with WithLogger is handed to the plugin unless cfg.Extra
// already carries one.
func Open(name string, cfg broker.Config, opts ...Option) (*Dispatcher, error) {
	s := settings{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&s)
	}

	extra := make(map[string]any, len(cfg.Extra)+1)
	for k, v := range cfg.Extra {
		extra[k] = v
	}
	if _, ok := extra["logger"]; !ok {
		extra["logger"] = s.logger
	}
	cfg.Extra = extra

	conn, err := broker.Create(name, cfg)
	if err != nil {
		return nil, &core.ConnectionError{Op: "connect", Err: err}
	}
	addr := name
	if len(cfg.Brokers) > 0 {
		addr = cfg.Brokers[0]
	}
	return bind(conn, addr, s)
}

// bind wraps an open connection in a Dispatcher.
func bind(conn core.Connection, url string, s settings) (*Dispatcher, error) {
	coreOpts := append([]core.Option{core.WithLogger(s.logger)}, s.dispatcher...)
	d, err := core.New(conn, coreOpts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.logger.Info("connected to broker, listening to messages", zap.String("broker", url))
	return d, nil
}

// New binds a Dispatcher to an existing connection, such as one returned by
// broker.Create.
func New(conn Connection, opts ...Option) (*Dispatcher, error) {
	s := settings{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&s)
	}
	return bind(conn, "", s)
}
