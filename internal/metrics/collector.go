package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/natsfixture/internal/events"
)

// DefaultNamespace prefixes every metric name when New is given "".
const DefaultNamespace = "natsfixture"

// Collector records lifecycle events as Prometheus metrics.
type Collector struct {
	events           *prometheus.CounterVec
	startDuration    *prometheus.HistogramVec
	stopDuration     *prometheus.HistogramVec
	downloadDuration *prometheus.HistogramVec
	failures         *prometheus.CounterVec
	running          *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a collector with its own registry.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Total number of lifecycle events by type",
		},
		[]string{"instance", "type"},
	)

	c.startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "start_duration_seconds",
			Help:      "Time from start request until the client port accepted connections",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"instance", "outcome"},
	)

	c.stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stop_duration_seconds",
			Help:      "Time from stop request until the port was released",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"instance"},
	)

	c.downloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time spent downloading and extracting the server binary",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"instance"},
	)

	c.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of failed starts and unexpected exits",
		},
		[]string{"instance", "reason"},
	)

	c.running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_running",
			Help:      "Whether the instance is serving (1) or not (0)",
		},
		[]string{"instance"},
	)

	c.registry.MustRegister(
		c.events,
		c.startDuration,
		c.stopDuration,
		c.downloadDuration,
		c.failures,
		c.running,
	)

	return c
}

// Publish records e.
func (c *Collector) Publish(_ context.Context, e events.Event) error {
	c.events.WithLabelValues(e.Instance, string(e.Type)).Inc()

	switch e.Type {
	case events.TypeStarting:
		c.running.WithLabelValues(e.Instance).Set(0)
	case events.TypeStarted:
		c.startDuration.WithLabelValues(e.Instance, "success").Observe(e.Duration.Seconds())
		c.running.WithLabelValues(e.Instance).Set(1)
	case events.TypeStartFailed:
		c.startDuration.WithLabelValues(e.Instance, "failure").Observe(e.Duration.Seconds())
		c.failures.WithLabelValues(e.Instance, "start").Inc()
		c.running.WithLabelValues(e.Instance).Set(0)
	case events.TypeStopped:
		c.stopDuration.WithLabelValues(e.Instance).Observe(e.Duration.Seconds())
		c.running.WithLabelValues(e.Instance).Set(0)
	case events.TypeExited:
		c.failures.WithLabelValues(e.Instance, "exited").Inc()
		c.running.WithLabelValues(e.Instance).Set(0)
	case events.TypeDownloaded:
		c.downloadDuration.WithLabelValues(e.Instance).Observe(e.Duration.Seconds())
	}
	return nil
}

// Registry returns the collector's registry, for adding process or Go
// runtime collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ events.Sink = (*Collector)(nil)
