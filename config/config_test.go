package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqttengine/config"
	"github.com/miladsoleymani/mqttengine/core"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
broker:
  host: broker.local
  port: 8883
  qos: 1
routes:
  - in: in/x
    out: out/y
  - in: sensors/raw
    out: sensors/archive
metrics:
  listen: ":9100"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.Equal(t, 1, cfg.Broker.QoS)
	assert.Equal(t, []core.Route{{In: "in/x", Out: "out/y"}, {In: "sensors/raw", Out: "sensors/archive"}}, cfg.Routes)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "mqtt", cfg.Broker.Type)
}

func TestLoad_BrokerTypeAndExtra(t *testing.T) {
	cfg, err := config.Load(writeFile(t, `
broker:
  type: rabbitmq
  host: mq.local
  extra:
    exchange: events
    prefetch_count: 5
routes:
  - in: in/x
    out: out/y
`))
	require.NoError(t, err)

	assert.Equal(t, "rabbitmq", cfg.Broker.Type)
	assert.Equal(t, "events", cfg.Broker.Extra["exchange"])
	assert.Equal(t, 5, cfg.Broker.Extra["prefetch_count"])
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := config.Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Broker.Host)
	assert.Empty(t, cfg.Routes)
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := config.Load(writeFile(t, "brokr:\n  host: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid yaml")
}

func TestLoad_Missing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Type = "mq"
	cfg.Broker.Port = 70000
	cfg.Broker.QoS = 3
	cfg.Routes = []core.Route{{In: "a"}, {In: "b", Out: "b"}}
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"broker.type", "broker.port", "broker.qos", "routes[0]", "routes[1]", "logging.format"} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}
