package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/config"
	"github.com/miladsoleymani/mqttengine/core"
)

func TestParseRoutes(t *testing.T) {
	routes, err := parseRoutes([]string{"in/x=out/y", "a=b/c"})
	require.NoError(t, err)
	assert.Equal(t, []core.Route{{In: "in/x", Out: "out/y"}, {In: "a", Out: "b/c"}}, routes)

	for _, bad := range []string{"nope", "=out", "in="} {
		_, err := parseRoutes([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestResolveConfig_Flags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--host", "broker.local", "--port", "8883", "-r", "in/x=out/y"}))

	var f flags
	f.host, _ = cmd.Flags().GetString("host")
	f.port, _ = cmd.Flags().GetInt("port")
	f.routes, _ = cmd.Flags().GetStringArray("route")

	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, "broker.local", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.Equal(t, []core.Route{{In: "in/x", Out: "out/y"}}, cfg.Routes)
}

func TestResolveConfig_NoRoutes(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	_, err := resolveConfig(cmd, flags{host: "localhost"})
	assert.Error(t, err)
}

func TestBrokerAddress(t *testing.T) {
	tests := []struct {
		broker config.BrokerConfig
		want   string
	}{
		{config.BrokerConfig{Type: "mqtt", Host: "localhost"}, "mqtt://localhost:1883"},
		{config.BrokerConfig{Type: "nats", Host: "localhost"}, "nats://localhost:4222"},
		{config.BrokerConfig{Type: "kafka", Host: "k1", Port: 19092}, "k1:19092"},
		{config.BrokerConfig{Type: "rabbitmq", Host: "mq"}, "amqp://mq:5672/"},
		{config.BrokerConfig{Type: "rabbitmq", Host: "mq", Username: "u", Password: "p"}, "amqp://u:p@mq:5672/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, brokerAddress(tt.broker), tt.broker.Type)
	}
}

func TestResolveConfig_BrokerFlag(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--broker", "nats", "-r", "a=b"}))

	var f flags
	f.brokerType, _ = cmd.Flags().GetString("broker")
	f.host, _ = cmd.Flags().GetString("host")
	f.routes, _ = cmd.Flags().GetStringArray("route")

	cfg, err := resolveConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.Broker.Type)
}

func TestPluginsRegistered(t *testing.T) {
	names := broker.Names()
	for _, want := range []string{"mqtt", "nats", "kafka", "rabbitmq"} {
		assert.Contains(t, names, want)
	}
}
