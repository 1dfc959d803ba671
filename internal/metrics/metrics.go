// Package metrics exposes Prometheus collectors for the inference pool and
// the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kokorotts"

// Metrics groups the collectors registered on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	inferences   *prometheus.CounterVec
	inferenceDur prometheus.Histogram
	queueDepth   prometheus.Gauge
	busy         prometheus.Gauge
	requests     *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_total",
			Help:      "Inference calls by instance and outcome.",
		}, []string{"instance", "status"}),
		inferenceDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of single chunk inference calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_queue_depth",
			Help:      "Inference requests waiting for an instance.",
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_busy_instances",
			Help:      "Instances currently running an inference call.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status code.",
		}, []string{"path", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inferences,
		m.inferenceDur,
		m.queueDepth,
		m.busy,
		m.requests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveInference records one finished inference call.
func (m *Metrics) ObserveInference(instance int, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.inferences.WithLabelValues(strconv.Itoa(instance), status).Inc()
	m.inferenceDur.Observe(d.Seconds())
}

// QueueAdd moves the queue depth gauge by delta.
func (m *Metrics) QueueAdd(delta float64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(delta)
}

// BusyAdd moves the busy instances gauge by delta.
func (m *Metrics) BusyAdd(delta float64) {
	if m == nil {
		return
	}
	m.busy.Add(delta)
}

// ObserveRequest counts one HTTP response.
func (m *Metrics) ObserveRequest(path string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, strconv.Itoa(code)).Inc()
}
