// Package metrics defines the Prometheus collectors used by the counting
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	TasksSkippedTotal *prometheus.CounterVec
	WavesTotal        prometheus.Counter
	WaveDuration      prometheus.Histogram
	RecordsChunked    *prometheus.CounterVec
	ChunkFlushesTotal *prometheus.CounterVec
	SequencesMerged   *prometheus.CounterVec
	PatternsPending   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg registers
// with the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_tasks_total",
				Help: "Chunk and merge tasks by phase, kind and status.",
			},
			[]string{"phase", "kind", "status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ngram_task_duration_seconds",
				Help:    "Per-pattern chunk and merge task latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"phase", "kind"},
		),
		TasksSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_tasks_skipped_total",
				Help: "Tasks skipped because status already records the stage.",
			},
			[]string{"phase", "kind"},
		),
		WavesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ngram_waves_total",
				Help: "Scheduler waves executed.",
			},
		),
		WaveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ngram_wave_duration_seconds",
				Help:    "Wall time of one scheduler wave in seconds.",
				Buckets: []float64{0.1, 1, 10, 60, 300, 900, 3600},
			},
		),
		RecordsChunked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_records_chunked_total",
				Help: "Sequence records emitted by chunk producers.",
			},
			[]string{"kind"},
		),
		ChunkFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_chunk_flushes_total",
				Help: "Buffer flushes to chunk files.",
			},
			[]string{"kind"},
		),
		SequencesMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_sequences_merged_total",
				Help: "Distinct sequences written to final count files.",
			},
			[]string{"kind"},
		),
		PatternsPending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ngram_patterns_pending",
				Help: "Patterns not yet counted, by kind.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.TasksTotal,
		m.TaskDuration,
		m.TasksSkippedTotal,
		m.WavesTotal,
		m.WaveDuration,
		m.RecordsChunked,
		m.ChunkFlushesTotal,
		m.SequencesMerged,
		m.PatternsPending,
	)

	return m
}

// NewNop returns collectors registered on a private registry, for callers
// that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g serves
// the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
