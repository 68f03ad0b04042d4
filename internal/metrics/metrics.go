// Package metrics exposes observer counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/panicsave/panicsave/internal/focus"
)

// Suppression reasons
const (
	ReasonClosing  = "host_closing"
	ReasonNotArmed = "not_armed"
	ReasonStopped  = "stopped"
)

// Metrics holds all Prometheus metrics of the observer
type Metrics struct {
	FocusEvents *prometheus.CounterVec
	Triggers    prometheus.Counter
	Suppressed  *prometheus.CounterVec
	Saves       *prometheus.CounterVec
	SaveSeconds prometheus.Histogram
	Armed       prometheus.Gauge
	HostClosing prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FocusEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panicsave_focus_events_total",
				Help: "Focus changes delivered by the OS hooks",
			},
			[]string{"kind"},
		),
		Triggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "panicsave_save_triggers_total",
			Help: "Focus-out transitions that triggered a save",
		}),
		Suppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panicsave_focus_out_suppressed_total",
				Help: "Focus-out events that did not trigger a save",
			},
			[]string{"reason"},
		),
		Saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panicsave_saves_total",
				Help: "Completed save attempts by result",
			},
			[]string{"result"},
		),
		SaveSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "panicsave_save_duration_seconds",
			Help:    "Duration of save attempts",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Armed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "panicsave_armed",
			Help: "1 when the host was focused since the last trigger",
		}),
		HostClosing: factory.NewGauge(prometheus.GaugeOpts{
			Name: "panicsave_host_closing",
			Help: "1 once the host started shutting down",
		}),
	}
}

// ObserveDecision records one focus event and what the machine made of it
func (m *Metrics) ObserveDecision(kind focus.Kind, d focus.Decision) {
	m.FocusEvents.WithLabelValues(kind.String()).Inc()
	m.Armed.Set(boolGauge(d.Next.Armed))

	if kind != focus.OtherFocused {
		return
	}

	switch {
	case d.Action == focus.TriggerSave:
		m.Triggers.Inc()
	case d.Stopped:
		m.Suppressed.WithLabelValues(ReasonStopped).Inc()
	case d.Prev.HostClosing:
		m.Suppressed.WithLabelValues(ReasonClosing).Inc()
	default:
		m.Suppressed.WithLabelValues(ReasonNotArmed).Inc()
	}
}

// ObserveClosing records the host closing signal
func (m *Metrics) ObserveClosing() {
	m.HostClosing.Set(1)
}

// ObserveSave records the outcome of a save attempt
func (m *Metrics) ObserveSave(seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Saves.WithLabelValues(result).Inc()
	m.SaveSeconds.Observe(seconds)
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
