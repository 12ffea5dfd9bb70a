// Package metrics exposes the service's Prometheus collectors. A nil *Metrics
// is valid and records nothing, so components can be built without it in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hegemone"

type Metrics struct {
	registry *prometheus.Registry

	httpTiming   *prometheus.SummaryVec
	ingested     *prometheus.CounterVec
	sinkErrors   *prometheus.CounterVec
	graphFetches *prometheus.CounterVec
	graphRecords prometheus.Gauge
	graphViews   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpTiming: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  namespace,
				Name:       "http_request_duration_seconds",
				Help:       "HTTP request latency by route and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"method", "route", "status"},
		),
		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "measurements_ingested_total",
				Help:      "Telemetry messages accepted, by transport.",
			},
			[]string{"source"},
		),
		sinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Failed deliveries to a measurement sink.",
			},
			[]string{"sink"},
		),
		graphFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_fetches_total",
				Help:      "Graph data fetches by result.",
			},
			[]string{"result"},
		),
		graphRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_records",
			Help:      "Records held by the most recently loaded graph.",
		}),
		graphViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_views",
			Help:      "Open graph page views.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpTiming,
		m.ingested,
		m.sinkErrors,
		m.graphFetches,
		m.graphRecords,
		m.graphViews,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpTiming.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) Ingested(source string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source).Inc()
}

func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// GraphFetch records the outcome of the graph's single fetch ("ok", "fetch_error",
// "validation_error" or "discarded").
func (m *Metrics) GraphFetch(result string, records int) {
	if m == nil {
		return
	}
	m.graphFetches.WithLabelValues(result).Inc()
	if result == "ok" {
		m.graphRecords.Set(float64(records))
	}
}

func (m *Metrics) GraphViews(open int) {
	if m == nil {
		return
	}
	m.graphViews.Set(float64(open))
}
