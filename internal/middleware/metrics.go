package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exchange outcomes recorded by Metrics.ObserveExchange.
const (
	OutcomeAnswered = "answered"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Metrics owns the service's Prometheus registry.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	exchanges *prometheus.CounterVec
	liveConns prometheus.Gauge
}

// NewMetrics registers the HTTP and chat collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_exchanges_total",
			Help: "Chat sends by outcome.",
		}, []string{"outcome"}),
		liveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_live_connections",
			Help: "Open websocket connections.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.exchanges,
		m.liveConns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records count and latency per chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveExchange counts one chat send.
func (m *Metrics) ObserveExchange(outcome string) {
	m.exchanges.WithLabelValues(outcome).Inc()
}

// LiveConnected tracks websocket connections; call the returned func on close.
func (m *Metrics) LiveConnected() func() {
	m.liveConns.Inc()
	return m.liveConns.Dec
}
