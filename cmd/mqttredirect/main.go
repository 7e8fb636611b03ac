// Command mqttredirect connects to a broker and republishes messages from
// input topics to output topics. MQTT is the default; --broker selects
// nats, kafka or rabbitmq instead.
//
//	mqttredirect --host localhost --route in/x=out/y --route sensors/raw=sensors/archive
//	mqttredirect --broker nats --route in/x=out/y
//	mqttredirect --config routes.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/mqttengine"
	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/config"
	"github.com/miladsoleymani/mqttengine/core"
	"github.com/miladsoleymani/mqttengine/core/middleware"
	"github.com/miladsoleymani/mqttengine/metrics"
	"github.com/miladsoleymani/mqttengine/plugins/mqtt"

	// Register the non-MQTT plugins with the broker registry.
	_ "github.com/miladsoleymani/mqttengine/plugins/kafka"
	_ "github.com/miladsoleymani/mqttengine/plugins/nats"
	_ "github.com/miladsoleymani/mqttengine/plugins/rabbitmq"
)

// defaultPorts is used when no port is configured.
var defaultPorts = map[string]int{
	"mqtt":     mqttengine.DefaultPort,
	"nats":     4222,
	"kafka":    9092,
	"rabbitmq": 5672,
}

type flags struct {
	configPath    string
	brokerType    string
	host          string
	port          int
	clientID      string
	routes        []string
	logLevel      string
	metricsListen string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "mqttredirect",
		Short:        "Republish MQTT messages from one topic to another",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML routes file")
	fs.StringVar(&f.brokerType, "broker", "mqtt", "broker type: "+strings.Join(config.BrokerTypes, ", "))
	fs.StringVar(&f.host, "host", "localhost", "broker host")
	fs.IntVar(&f.port, "port", 0, "broker port (0 means 1883)")
	fs.StringVar(&f.clientID, "client-id", "", "MQTT client ID (random when empty)")
	fs.StringArrayVarP(&f.routes, "route", "r", nil, "redirect in the form in=out (repeatable)")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.metricsListen, "metrics-listen", "", "address for the Prometheus endpoint, e.g. :9100")
	return cmd
}

// resolveConfig loads the config file, if any, and applies explicitly set flags on top.
func resolveConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs := cmd.Flags()
	if fs.Changed("broker") {
		cfg.Broker.Type = f.brokerType
	}
	if fs.Changed("host") || f.configPath == "" {
		cfg.Broker.Host = f.host
	}
	if fs.Changed("port") {
		cfg.Broker.Port = f.port
	}
	if fs.Changed("client-id") {
		cfg.Broker.ClientID = f.clientID
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if fs.Changed("metrics-listen") {
		cfg.Metrics.Listen = f.metricsListen
	}

	routes, err := parseRoutes(f.routes)
	if err != nil {
		return nil, err
	}
	cfg.Routes = append(cfg.Routes, routes...)
	if len(cfg.Routes) == 0 {
		return nil, errors.New("no routes configured; pass --route or --config")
	}
	return cfg, cfg.Validate()
}

func parseRoutes(args []string) ([]core.Route, error) {
	routes := make([]core.Route, 0, len(args))
	for _, s := range args {
		in, out, ok := strings.Cut(s, "=")
		if !ok || in == "" || out == "" {
			return nil, fmt.Errorf("invalid route %q, want in=out", s)
		}
		routes = append(routes, core.Route{In: in, Out: out})
	}
	return routes, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := connect(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Error("connect failed", zap.Error(err))
		return err
	}
	defer d.Close()

	d.Use(middleware.Recovery(logger))
	d.Use(middleware.Logging(logger))

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		collector, err := metrics.NewCollector(reg, "mqttredirect")
		if err != nil {
			return err
		}
		d.Use(middleware.Metrics(collector))

		srv := serveMetrics(logger, reg, cfg.Metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := d.RedirectAll(ctx, cfg.Routes); err != nil {
		logger.Error("installing redirects failed", zap.Error(err))
		return err
	}
	logger.Info("redirects installed", zap.Int("routes", len(cfg.Routes)), zap.Strings("topics", d.Topics()))

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// connect opens the configured broker. MQTT goes through Connect so the
// Paho options apply; every other type goes through the plugin registry.
func connect(ctx context.Context, b config.BrokerConfig, logger *zap.Logger) (*mqttengine.Dispatcher, error) {
	if b.Type == "mqtt" {
		opts := []mqtt.Option{
			mqtt.WithSubscribeQoS(byte(b.QoS)),
			mqtt.WithPublishDefaults(byte(b.QoS), false),
			mqtt.WithAutoReconnect(b.AutoReconnect),
		}
		if b.ClientID != "" {
			opts = append(opts, mqtt.WithClientID(b.ClientID))
		}
		if b.Username != "" {
			opts = append(opts, mqtt.WithCredentials(b.Username, b.Password))
		}
		return mqttengine.Connect(ctx, b.Host, b.Port,
			mqttengine.WithLogger(logger),
			mqttengine.WithMQTTOptions(opts...))
	}

	return mqttengine.Open(b.Type, broker.Config{
		Brokers:  []string{brokerAddress(b)},
		ClientID: b.ClientID,
		Username: b.Username,
		Password: b.Password,
		Extra:    b.Extra,
	}, mqttengine.WithLogger(logger))
}

// brokerAddress formats host and port the way each plugin expects.
// RabbitMQ takes its credentials in the URI.
func brokerAddress(b config.BrokerConfig) string {
	port := b.Port
	if port == 0 {
		port = defaultPorts[b.Type]
	}
	hostport := net.JoinHostPort(b.Host, strconv.Itoa(port))

	switch b.Type {
	case "nats":
		return "nats://" + hostport
	case "kafka":
		return hostport
	case "rabbitmq":
		u := url.URL{Scheme: "amqp", Host: hostport, Path: "/"}
		if b.Username != "" {
			u.User = url.UserPassword(b.Username, b.Password)
		}
		return u.String()
	default:
		return mqttengine.BrokerURL(b.Host, b.Port)
	}
}

func serveMetrics(logger *zap.Logger, reg *prometheus.Registry, cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server starting", zap.String("addr", cfg.Listen), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}
