package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a private registry, so several
// services (tests, embedded use) never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	scans     *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	jobs      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cipherlens_scans_total",
			Help: "Total number of scans by kind and verdict",
		}, []string{"kind", "verdict"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cipherlens_cache_hits_total",
			Help: "Total number of verdicts served without running the detector",
		}, []string{"layer"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cipherlens_detection_seconds",
			Help:    "Time spent extracting features and scoring",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cipherlens_jobs_total",
			Help: "Total number of finished background jobs by final status",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.scans, m.cacheHits, m.latency, m.jobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format. Without
// metrics it answers 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeScan(kind string, phishing bool, took time.Duration) {
	if m == nil {
		return
	}
	verdict := "legitimate"
	if phishing {
		verdict = "phishing"
	}
	m.scans.WithLabelValues(kind, verdict).Inc()
	m.latency.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) scanFailed(kind string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(kind, "failed").Inc()
}

func (m *Metrics) cacheHit(layer string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(layer).Inc()
}

func (m *Metrics) jobFinished(status JobStatus) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(status)).Inc()
}
