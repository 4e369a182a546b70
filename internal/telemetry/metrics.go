// Package telemetry exposes Prometheus metrics for the reasoning service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bayesd"

// Metrics holds every collector the service records. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	inferences        *prometheus.CounterVec
	inferenceLatency  *prometheus.HistogramVec
	inferenceEvidence prometheus.Histogram

	beliefUpdates   *prometheus.CounterVec
	activeSubjects  prometheus.Gauge
	subjectsEvicted prometheus.Counter

	quantifications *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	modelFits       *prometheus.CounterVec

	cacheLookups *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		inferences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "total",
			Help:      "Inference calls by model type and convergence status",
		}, []string{"model_type", "status"}),
		inferenceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Inference latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"model_type"}),
		inferenceEvidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "evidence_items",
			Help:      "Evidence items folded per inference call",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		beliefUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "belief",
			Name:      "updates_total",
			Help:      "Belief updates by strategy and stability",
		}, []string{"strategy", "stable"}),
		activeSubjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "belief",
			Name:      "active_subjects",
			Help:      "Subjects currently tracked in memory",
		}),
		subjectsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "belief",
			Name:      "evicted_subjects_total",
			Help:      "Idle subjects evicted from memory",
		}),
		quantifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uncertainty",
			Name:      "quantifications_total",
			Help:      "Uncertainty quantifications by method",
		}, []string{"method"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "evaluations_total",
			Help:      "Decision tree evaluations by criterion",
		}, []string{"criterion"}),
		modelFits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "fits_total",
			Help:      "Model fits by model type and result",
		}, []string{"model_type", "result"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Inference cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) ObserveInference(modelType, status string, evidence int, d time.Duration) {
	if m == nil {
		return
	}
	m.inferences.WithLabelValues(modelType, status).Inc()
	m.inferenceLatency.WithLabelValues(modelType).Observe(d.Seconds())
	m.inferenceEvidence.Observe(float64(evidence))
}

func (m *Metrics) ObserveBeliefUpdate(strategy string, stable bool) {
	if m == nil {
		return
	}
	m.beliefUpdates.WithLabelValues(strategy, strconv.FormatBool(stable)).Inc()
}

func (m *Metrics) SetActiveSubjects(n int) {
	if m == nil {
		return
	}
	m.activeSubjects.Set(float64(n))
}

func (m *Metrics) AddEvictedSubjects(n int) {
	if m == nil {
		return
	}
	m.subjectsEvicted.Add(float64(n))
}

func (m *Metrics) ObserveQuantification(method string) {
	if m == nil {
		return
	}
	m.quantifications.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveDecision(criterion string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(criterion).Inc()
}

func (m *Metrics) ObserveModelFit(modelType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.modelFits.WithLabelValues(modelType, result).Inc()
}

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
