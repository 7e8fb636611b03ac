// Package config loads the YAML file consumed by cmd/mqttredirect.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/miladsoleymani/mqttengine/core"
)

// Config is the root of a routes file.
//
//	broker:
//	  type: mqtt
//	  host: localhost
//	  port: 1883
//	routes:
//	  - in: sensors/raw
//	    out: sensors/archive
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Routes  []core.Route  `yaml:"routes"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrokerTypes lists the accepted values of broker.type.
var BrokerTypes = []string{"mqtt", "nats", "kafka", "rabbitmq"}

// BrokerConfig describes the broker to connect to. Type selects the plugin;
// Extra is passed to it untouched (for example exchange for rabbitmq).
type BrokerConfig struct {
	Type          string `yaml:"type"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	QoS           int    `yaml:"qos"`
	AutoReconnect bool   `yaml:"auto_reconnect"`

	Extra map[string]any `yaml:"extra"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9100"
	Path   string `yaml:"path"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Broker:  BrokerConfig{Type: "mqtt", Host: "localhost"},
		Metrics: MetricsConfig{Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads and validates the file at path on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeStrict decodes YAML from a reader and rejects any unknown fields.
func DecodeStrict(r io.Reader, out any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: invalid yaml: %w", err)
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(BrokerTypes, c.Broker.Type) {
		errs = append(errs, fmt.Errorf("broker.type %q must be one of %s", c.Broker.Type, strings.Join(BrokerTypes, ", ")))
	}
	if c.Broker.Host == "" {
		errs = append(errs, errors.New("broker.host is required"))
	}
	if c.Broker.Port < 0 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port %d out of range", c.Broker.Port))
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, fmt.Errorf("broker.qos %d must be 0, 1 or 2", c.Broker.QoS))
	}
	for i, r := range c.Routes {
		if r.In == "" || r.Out == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: in and out are required", i))
		}
		if r.In == r.Out && r.In != "" {
			errs = append(errs, fmt.Errorf("routes[%d]: %q redirects to itself", i, r.In))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", multierr.Combine(errs...))
	}
	return nil
}
