// Package metrics exposes prometheus collectors for the retrieval pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds the paperdex collectors.
type Metrics struct {
	Registry *prometheus.Registry

	SearchRequests   *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	SearchCandidates *prometheus.HistogramVec

	ReembedJobs    *prometheus.CounterVec
	ReembedBatches prometheus.Counter
	SweepRuns      *prometheus.CounterVec

	EmbeddingCalls   *prometheus.CounterVec
	EmbeddingRetries prometheus.Counter
	EmbeddingCache   *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide collectors.
func Get() *Metrics {
	once.Do(func() {
		instance = New(prometheus.NewRegistry())
	})
	return instance
}

// New registers a fresh set of collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SearchRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "search_requests_total",
				Help:      "Total number of search requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "paperdex",
				Name:      "search_duration_seconds",
				Help:      "Search latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"mode"},
		),
		SearchCandidates: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "paperdex",
				Name:      "search_candidates",
				Help:      "Chunk candidates returned per retrieval mode",
				Buckets:   []float64{0, 1, 5, 10, 30, 60, 150, 300},
			},
			[]string{"source"},
		),
		ReembedJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "reembed_jobs_total",
				Help:      "Re-embedding jobs by outcome",
			},
			[]string{"outcome"},
		),
		ReembedBatches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "reembed_batches_total",
				Help:      "Chunk batches committed by the re-embedding coordinator",
			},
		),
		SweepRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "sweep_runs_total",
				Help:      "Periodic chunk sweeps by outcome",
			},
			[]string{"outcome"},
		),
		EmbeddingCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "embedding_calls_total",
				Help:      "Embedding provider calls by outcome",
			},
			[]string{"model", "outcome"},
		),
		EmbeddingRetries: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "embedding_retries_total",
				Help:      "Embedding provider calls retried after a transient failure",
			},
		),
		EmbeddingCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paperdex",
				Name:      "embedding_cache_total",
				Help:      "Query embedding cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveSearch records one finished search.
func (m *Metrics) ObserveSearch(mode, outcome string, started time.Time) {
	m.SearchRequests.WithLabelValues(mode, outcome).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

// ObserveCandidates records the number of chunk hits from one retrieval mode.
func (m *Metrics) ObserveCandidates(source string, n int) {
	m.SearchCandidates.WithLabelValues(source).Observe(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
