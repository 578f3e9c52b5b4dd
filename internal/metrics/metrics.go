// metrics.go -- Prometheus collectors for the login flow.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MGallo-Code/wxauth/internal/oauth"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	outcomes  *prometheus.CounterVec
	exchange  *prometheus.HistogramVec
	dedupe    *prometheus.CounterVec
	requests  *prometheus.CounterVec
	latencies *prometheus.HistogramVec
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxauth_login_outcomes_total",
			Help: "Page loads by login outcome.",
		}, []string{"outcome"}),
		exchange: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wxauth_exchange_duration_seconds",
			Help:    "Latency of calls to the exchange endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		dedupe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxauth_dedupe_hits_total",
			Help: "Duplicate exchanges absorbed, by source.",
		}, []string{"source"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxauth_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latencies: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wxauth_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.outcomes, m.exchange, m.dedupe, m.requests, m.latencies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOutcome counts one resolved page load.
func (m *Metrics) ObserveOutcome(o oauth.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.String()).Inc()
}

// DedupeHit counts one absorbed duplicate. Suitable for oauth.WithHitHook.
func (m *Metrics) DedupeHit(source string) {
	if m == nil {
		return
	}
	m.dedupe.WithLabelValues(source).Inc()
}

// InstrumentTransport times every Post through next.
func (m *Metrics) InstrumentTransport(next oauth.Transport) oauth.Transport {
	if m == nil {
		return next
	}
	return &timedTransport{next: next, hist: m.exchange}
}

type timedTransport struct {
	next oauth.Transport
	hist *prometheus.HistogramVec
}

func (t *timedTransport) Post(ctx context.Context, url string, body any) ([]byte, error) {
	start := time.Now()
	raw, err := t.next.Post(ctx, url, body)
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.hist.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return raw, err
}

// Middleware records request counts and latency keyed by chi route pattern,
// so path parameters never explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.latencies.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
