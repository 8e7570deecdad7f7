// Package metrics exposes receiver counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wmbus"

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry's metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics are the receiver's counters. A nil *Metrics discards
// observations.
type Metrics struct {
	Frames    *prometheus.CounterVec // labels: endpoint
	Errors    *prometheus.CounterVec // labels: stage
	Telegrams *prometheus.CounterVec // labels: manufacturer
	Readings  *prometheus.CounterVec // labels: kind, unit
	Commands  prometheus.Counter
	Devices   prometheus.Gauge
}

// New registers and returns the receiver metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames received from the stick by endpoint.",
		}, []string{"endpoint"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Dropped or partially decoded messages by stage.",
		}, []string{"stage"}),
		Telegrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegrams_total",
			Help:      "Telegrams dispatched to a meter decoder by manufacturer.",
		}, []string{"manufacturer"}),
		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Decoded readings by kind.",
		}, []string{"kind", "unit"}),
		Commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands written to the stick.",
		}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of registered devices.",
		}),
	}
	reg.MustRegister(m.Frames, m.Errors, m.Telegrams, m.Readings, m.Commands, m.Devices)
	return m
}

func (m *Metrics) Frame(endpoint string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Telegram(manufacturer string) {
	if m == nil {
		return
	}
	m.Telegrams.WithLabelValues(manufacturer).Inc()
}

func (m *Metrics) Reading(kind, unit string) {
	if m == nil {
		return
	}
	m.Readings.WithLabelValues(kind, unit).Inc()
}

func (m *Metrics) Command() {
	if m == nil {
		return
	}
	m.Commands.Inc()
}

func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.Devices.Set(float64(n))
}
