// Package metrics holds the prometheus collectors for the sorting line.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sortline"

// Metrics contains all line metrics, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Line activity
	ItemsDetected   *prometheus.CounterVec
	SorterPulses    *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	EventsPurged    prometheus.Counter
	SchedulePending prometheus.Gauge
	ProcessState    *prometheus.GaugeVec
	ConveyorSpeed   prometheus.Gauge
	CycleDuration   prometheus.Histogram

	// Field bus
	FieldbusErrors    *prometheus.CounterVec
	FieldbusConnected prometheus.Gauge
	DroppedWrites     prometheus.Counter
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ItemsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vision",
				Name:      "items_total",
				Help:      "Items detected by the vision sensor while running, by category",
			},
			[]string{"category"},
		),

		SorterPulses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sorter",
				Name:      "pulses_total",
				Help:      "Sorter activations dispatched",
			},
			[]string{"sorter"},
		),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "process",
				Name:      "transitions_total",
				Help:      "Process state transitions",
			},
			[]string{"from", "to"},
		),

		EventsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "purged_total",
				Help:      "Pending sorter commands discarded on leaving RUNNING",
			},
		),

		SchedulePending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "pending",
				Help:      "Sorter commands waiting for their due time",
			},
		),

		ProcessState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "process",
				Name:      "state",
				Help:      "1 for the current process state, 0 otherwise",
			},
			[]string{"state"},
		),

		ConveyorSpeed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "conveyor",
				Name:      "speed",
				Help:      "Last speed factor requested by the actuation driver",
			},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "control",
				Name:      "cycle_duration_seconds",
				Help:      "Time spent in one control cycle, excluding the wait for the next tick",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),

		FieldbusErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fieldbus",
				Name:      "errors_total",
				Help:      "Failed field-bus operations, by operation",
			},
			[]string{"op"},
		),

		FieldbusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "fieldbus",
				Name:      "connected",
				Help:      "Field-bus connection state (0=down, 1=up)",
			},
		),

		DroppedWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fieldbus",
				Name:      "dropped_writes_total",
				Help:      "Coil writes dropped because the link was down or the write failed",
			},
		),
	}

	m.registry.MustRegister(
		m.ItemsDetected,
		m.SorterPulses,
		m.Transitions,
		m.EventsPurged,
		m.SchedulePending,
		m.ProcessState,
		m.ConveyorSpeed,
		m.CycleDuration,
		m.FieldbusErrors,
		m.FieldbusConnected,
		m.DroppedWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SetState marks state as the current process state.
func (m *Metrics) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ProcessState.WithLabelValues(s).Set(v)
	}
}
