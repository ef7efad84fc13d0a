package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/ariefcatur/renu-clearing/internal/failure"
)

const namespace = "renu"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware labels requests by chi route pattern, so /api/orders/{id} is one series.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		handler := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			handler = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ProviderMetrics covers outbound gateway and POS calls.
type ProviderMetrics struct {
	Calls        *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
	BreakerState *prometheus.GaugeVec
}

func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "Provider calls by operation and outcome kind.",
	}, []string{"provider", "op", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_call_duration_ms",
		Help:      "Provider call latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"provider", "op"})
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state per provider: 0 closed, 1 half-open, 2 open.",
	}, []string{"provider"})

	reg.MustRegister(calls, latency, state)
	return &ProviderMetrics{Calls: calls, LatencyMS: latency, BreakerState: state}
}

// Observe has the clearing/management Observer signature.
func (m *ProviderMetrics) Observe(provider, op string, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(failure.KindOf(err))
	}
	m.Calls.WithLabelValues(provider, op, outcome).Inc()
	m.LatencyMS.WithLabelValues(provider, op).Observe(float64(took.Milliseconds()))
}

// BreakerChanged is meant for breaker.Settings.OnStateChange.
func (m *ProviderMetrics) BreakerChanged(provider string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.BreakerState.WithLabelValues(provider).Set(v)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
