// Package telemetry exposes prometheus metrics for the registry and its HTTP surface.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/vars"
)

const namespace = "warden"

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	Registry        *prometheus.Registry
	members         *prometheus.GaugeVec
	registrations   *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
}

// New creates and registers all collectors. gateways, if set, reports the
// number of routable gateways at scrape time.
func New(gateways func() int) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		members: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Live registered members per category.",
		}, []string{"category"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Members that joined the registry.",
		}, []string{"category"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Members removed from the registry.",
		}, []string{"category", "reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"op", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"op"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}, []string{"op"}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build info (constant 1, labeled by version and git_sha).",
	}, []string{"version", "git_sha"})
	buildInfo.WithLabelValues(vars.Version, vars.CommitShort()).Set(1)

	start := time.Now()
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(start).Seconds() })

	m.Registry.MustRegister(m.members, m.registrations, m.evictions,
		m.requests, m.requestDuration, m.inFlight, buildInfo, uptime)

	if gateways != nil {
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routable_gateways",
			Help:      "Gateways currently offered to clients.",
		}, func() float64 { return float64(gateways()) }))
	}

	return m
}

// Handler exposes the metrics registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// MemberRegistered implements registry.Listener.
func (m *Metrics) MemberRegistered(rec registry.ServerRecord, created bool) {
	if !created {
		return
	}
	category := rec.Category.String()
	m.members.WithLabelValues(category).Inc()
	m.registrations.WithLabelValues(category).Inc()
}

// MemberEvicted implements registry.Listener.
func (m *Metrics) MemberEvicted(rec registry.ServerRecord, reason registry.EvictReason, _ time.Time) {
	category := rec.Category.String()
	m.members.WithLabelValues(category).Dec()
	m.evictions.WithLabelValues(category, string(reason)).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next to record request metrics under the op label.
func (m *Metrics) Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.inFlight.WithLabelValues(op).Inc()
		defer m.inFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		m.requests.WithLabelValues(op, class).Inc()
		m.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
