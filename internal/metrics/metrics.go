// Package metrics provides Prometheus metrics for the live pipeline and
// the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drivesense"

// Live message outcomes
const (
	OutcomeWindow   = "window"
	OutcomeIgnored  = "ignored"
	OutcomeBuffered = "buffered"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Live protocol
	LiveConnections prometheus.Gauge
	LiveMessages    *prometheus.CounterVec
	DroppedSamples  prometheus.Counter

	// Classification
	WindowsClassified *prometheus.CounterVec
	InferenceFailures prometheus.Counter
	InferenceLatency  prometheus.Histogram

	// Persistence
	RecordsPersisted prometheus.Counter
	PersistFailures  prometheus.Counter

	// Scoring
	SessionsScored *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connections",
			Help:      "Number of open live telemetry connections",
		}),
		LiveMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "messages_total",
			Help:      "Inbound live messages by outcome",
		}, []string{"outcome"}),

		DroppedSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "dropped_samples_total",
			Help:      "Trailing samples of a replaced payload that did not fill a window",
		}),

		WindowsClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "windows_total",
			Help:      "Windows classified, by label",
		}, []string{"label"}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "failures_total",
			Help:      "Windows dropped because inference failed",
		}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "latency_seconds",
			Help:      "Time from window ready to label, including pool wait",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		RecordsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "behavior_records_total",
			Help:      "Behaviour records written",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "behavior_failures_total",
			Help:      "Windows whose records could not be written",
		}),

		SessionsScored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "sessions_total",
			Help:      "Closed sessions by scoring result",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
