// Package metrics exposes Prometheus instrumentation for conversions, the
// expiration registry and the HTTP surface.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is implemented by Prom and Noop.
type Metrics interface {
	ObserveConversion(outcome string, durationSeconds float64)
	IncActiveArtifacts()
	DecActiveArtifacts()
	IncExpirations(result string)
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveConversion(string, float64)              {}
func (Noop) IncActiveArtifacts()                            {}
func (Noop) DecActiveArtifacts()                            {}
func (Noop) IncExpirations(string)                          {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics backed by the default Prometheus registerer.
type Prom struct {
	conversions  *prometheus.CounterVec
	convDuration *prometheus.HistogramVec
	active       prometheus.Gauge
	expirations  *prometheus.CounterVec
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	once         sync.Once
}

// NewProm constructs and registers the collectors under namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversions by outcome",
		}, []string{"outcome"}),
		convDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of a conversion by outcome",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts_active",
			Help:      "Artifacts currently registered and retrievable",
		}),
		expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expirations_total",
			Help:      "Expired artifacts by cleanup result",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.conversions, p.convDuration, p.active, p.expirations, p.requests, p.latency)
	})
}

func (p *Prom) ObserveConversion(outcome string, durationSeconds float64) {
	p.conversions.WithLabelValues(outcome).Inc()
	p.convDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

func (p *Prom) IncActiveArtifacts() { p.active.Inc() }

func (p *Prom) DecActiveArtifacts() { p.active.Dec() }

func (p *Prom) IncExpirations(result string) {
	p.expirations.WithLabelValues(result).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
