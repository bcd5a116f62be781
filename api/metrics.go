package api

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qbrreport/narrative"
)

// Metrics exposes request and hydration counters on a private registry.
// It implements narrative.Observer. A nil *Metrics is a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	hydrationsTotal   *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	hydrationDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		hydrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbr_hydrations_total",
			Help: "Narratives produced, by producer and entity kind.",
		}, []string{"source", "kind"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbr_generation_failures_total",
			Help: "Generation attempts that fell back, by failure kind.",
		}, []string{"kind"}),
		hydrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qbr_hydration_duration_seconds",
			Help:    "Histogram of end-to-end hydration durations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.hydrationsTotal,
		m.failuresTotal,
		m.hydrationDuration,
	)
	return m
}

// Observe records a hydration outcome.
func (m *Metrics) Observe(o narrative.Outcome) {
	if m == nil {
		return
	}
	m.hydrationsTotal.WithLabelValues(string(o.Source), string(o.EntityKind)).Inc()
	if o.Failure != narrative.FailureNone {
		m.failuresTotal.WithLabelValues(string(o.Failure)).Inc()
	}
	m.hydrationDuration.Observe(o.Duration.Seconds())
}

// Middleware counts requests by mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		snoop := httpsnoop.CaptureMetrics(next, w, r)
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(snoop.Code)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(snoop.Duration.Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
