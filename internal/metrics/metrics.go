// Package metrics exposes the bridge counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloudpico-sensorbridge/internal/ble"
	"cloudpico-sensorbridge/internal/measure"
)

const namespace = "sensorbridge"

type Registry struct {
	reg *prometheus.Registry
}

// New creates a registry with the Go runtime and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg}
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// RegisterBLE exports every reconciliation counter as
// sensorbridge_ble_<name>_total.
func (r *Registry) RegisterBLE(stats *ble.Stats) error {
	for _, c := range stats.Counters() {
		load := c.Load
		counter := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ble",
			Name:      c.Name + "_total",
			Help:      c.Help,
		}, func() float64 { return float64(load()) })
		if err := r.reg.Register(counter); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPublisher exports the measurement store queue counters.
func (r *Registry) RegisterPublisher(stats *measure.Stats) error {
	for _, c := range []struct {
		name, help string
		load       func() uint64
	}{
		{"queued_total", "Messages queued for upstream delivery", stats.Queued.Load},
		{"published_total", "Messages acknowledged by the broker", stats.Published.Load},
		{"errors_total", "Messages that failed to publish", stats.PublishErrors.Load},
	} {
		load := c.load
		counter := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(load()) })
		if err := r.reg.Register(counter); err != nil {
			return err
		}
	}
	return nil
}

// RegisterGauge exports a sampled value.
func (r *Registry) RegisterGauge(name, help string, sample func() float64) error {
	return r.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, sample))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// BoolGauge converts a flag to 0 or 1.
func BoolGauge(f func() bool) func() float64 {
	return func() float64 {
		if f() {
			return 1
		}
		return 0
	}
}
