// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/reel-cli/internal/model"
)

// Collector records run, step and adapter metrics on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	stepDuration  *prometheus.HistogramVec
	adapterRetry  *prometheus.CounterVec
	breakerOpened *prometheus.CounterVec
}

// NewCollector creates a Collector under the given namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Runs accepted and registered.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal status.",
		}, []string{"status", "category"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs currently executing.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of pipeline steps.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"step", "outcome"}),
		adapterRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_retries_total",
			Help:      "Adapter calls retried after a transient failure.",
		}, []string{"service"}),
		breakerOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_breaker_rejections_total",
			Help:      "Adapter calls rejected by an open circuit breaker.",
		}, []string{"service"}),
	}
	reg.MustRegister(
		c.runsStarted,
		c.runsFinished,
		c.runsInFlight,
		c.stepDuration,
		c.adapterRetry,
		c.breakerOpened,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RunStarted counts a newly registered run and marks it in flight.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsStarted.Inc()
	c.runsInFlight.Inc()
}

// RunFinished records a run's terminal status. category is empty for
// completed runs.
func (c *Collector) RunFinished(status model.RunStatus, category model.ErrorCategory) {
	if c == nil {
		return
	}
	c.runsInFlight.Dec()
	c.runsFinished.WithLabelValues(string(status), string(category)).Inc()
}

// StepObserved records how long a step took and whether it succeeded.
func (c *Collector) StepObserved(step model.StepName, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(string(step), outcome).Observe(d.Seconds())
}

// AdapterRetried counts one retry of a call to service.
func (c *Collector) AdapterRetried(service string) {
	if c == nil {
		return
	}
	c.adapterRetry.WithLabelValues(service).Inc()
}

// BreakerRejected counts a call refused by the breaker for service.
func (c *Collector) BreakerRejected(service string) {
	if c == nil {
		return
	}
	c.breakerOpened.WithLabelValues(service).Inc()
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
