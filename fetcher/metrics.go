package fetcher

import (
	"time"

	"github.com/aluiziolira/go-linkcheck/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a validation run.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	ScoreHistogram  prometheus.Histogram
	CacheHitsTotal  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcheck_requests_total",
			Help: "HTTP attempts issued by the fetcher, by outcome status.",
		},
		[]string{"status"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkcheck_request_duration_seconds",
			Help:    "Latency of individual HTTP attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkcheck_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcheck_errors_total",
			Help: "Failed attempts by error type.",
		},
		[]string{"error_type"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcheck_records_total",
			Help: "Validation records produced, by final status.",
		},
		[]string{"status"},
	)
	scores := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkcheck_relevance_score",
			Help:    "Relevance scores of successfully fetched targets.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkcheck_fetch_cache_hits_total",
			Help: "Targets served from the fetch cache.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, records, scores, cacheHits)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		RecordsTotal:    records,
		ScoreHistogram:  scores,
		CacheHitsTotal:  cacheHits,
	}
}

// IncRequest counts one attempt with its outcome status.
func (m *Metrics) IncRequest(status models.Status) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(status)).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRecord counts a finished record and its score.
func (m *Metrics) ObserveRecord(r models.Record) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(string(r.Status)).Inc()
	if r.Status == models.StatusSuccess {
		m.ScoreHistogram.Observe(r.Score)
	}
}

// IncCacheHit counts a fetch served from the cache.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}
