// Package metrics provides a Prometheus backend for the metrics middleware.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records handler outcomes and durations per topic.
// It implements middleware.MetricsCollector.
type Collector struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Messages processed by handlers, by topic and status.",
		}, []string{"topic", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler processing time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	for _, m := range []prometheus.Collector{c.processed, c.duration} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("mqttengine/metrics: register: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) MessageProcessed(topic string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.processed.WithLabelValues(topic, status).Inc()
	c.duration.WithLabelValues(topic).Observe(duration.Seconds())
}
