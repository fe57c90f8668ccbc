package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the pipeline's Prometheus metrics.
type Registry struct {
	AlertsAdmitted   *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec
	MonitorChecks    *prometheus.CounterVec
	MonitorErrors    *prometheus.CounterVec
	SynthesisTotal   prometheus.Counter
	DispatchTotal    *prometheus.CounterVec
	SinkFailures     *prometheus.CounterVec
	BufferSize       prometheus.Gauge
	DedupEntries     prometheus.Gauge
	TickDuration     prometheus.Histogram

	registry *prometheus.Registry
}

// NewRegistry creates and registers all pipeline metrics on a fresh
// Prometheus registry, so tests get isolated collectors.
func NewRegistry() *Registry {
	r := &Registry{
		AlertsAdmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsewatcher_alerts_admitted_total",
				Help: "Alerts admitted past the dedup window by kind",
			},
			[]string{"kind"},
		),
		AlertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsewatcher_alerts_suppressed_total",
				Help: "Alerts suppressed as duplicates by kind",
			},
			[]string{"kind"},
		),
		MonitorChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsewatcher_monitor_checks_total",
				Help: "Monitor check invocations by monitor name",
			},
			[]string{"monitor"},
		),
		MonitorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsewatcher_monitor_errors_total",
				Help: "Monitor check failures by monitor name",
			},
			[]string{"monitor"},
		),
		SynthesisTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulsewatcher_synthesis_total",
				Help: "Synthesis passes that fired",
			},
		),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsewatcher_dispatch_total",
				Help: "Dispatched messages by final status",
			},
			[]string{"status"},
		),
		SinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsewatcher_sink_failures_total",
				Help: "Per-sink delivery failures",
			},
			[]string{"sink"},
		),
		BufferSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsewatcher_buffer_size",
				Help: "Alerts currently buffered toward synthesis",
			},
		),
		DedupEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsewatcher_dedup_entries",
				Help: "Live fingerprint entries in the dedup window",
			},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulsewatcher_tick_duration_seconds",
				Help:    "Duration of one orchestration tick",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.AlertsAdmitted,
		r.AlertsSuppressed,
		r.MonitorChecks,
		r.MonitorErrors,
		r.SynthesisTotal,
		r.DispatchTotal,
		r.SinkFailures,
		r.BufferSize,
		r.DedupEntries,
		r.TickDuration,
	)
	return r
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (r *Registry) Gatherer() *prometheus.Registry {
	return r.registry
}
