// Package metrics exposes pipeline progress as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imdbload"

// Stages, in run order.
var stages = []string{"idle", "preflight", "cleanup", "normalize", "emit", "split", "load", "done", "failed"}

type Metrics struct {
	registry *prometheus.Registry

	// Normalization
	RowsWritten  *prometheus.CounterVec
	RowsRejected *prometheus.CounterVec
	ReplacedUTF8 *prometheus.CounterVec

	// Loading
	RowsLoaded     *prometheus.CounterVec
	RowsDeleted    *prometheus.CounterVec
	ChunksLoaded   *prometheus.CounterVec
	ChunkDuration  *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	Stage          *prometheus.GaugeVec
	LastRunSuccess prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		RowsWritten: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Normalized rows written to table files",
			},
			[]string{"table"},
		),
		RowsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_rejected_total",
				Help:      "Source records rejected during normalization",
			},
			[]string{"table", "code"},
		),
		ReplacedUTF8: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_utf8_bytes_total",
				Help:      "Source bytes that were not valid UTF-8 and were replaced with '?'",
			},
			[]string{"table"},
		),
		RowsLoaded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_loaded_total",
				Help:      "Rows copied into the store",
			},
			[]string{"table"},
		),
		RowsDeleted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_deleted_total",
				Help:      "Rows deleted from the store during cleanup",
			},
			[]string{"table"},
		),
		ChunksLoaded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_loaded_total",
				Help:      "Chunk files processed by the bulk loader",
			},
			[]string{"table", "status"}, // status: success/error/skipped
		),
		ChunkDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_load_seconds",
				Help:      "Time to copy one chunk file",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"table"},
		),
		StageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_seconds",
				Help:      "Duration of each pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"stage"},
		),
		Stage: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage",
				Help:      "1 for the stage the pipeline is in, 0 otherwise",
			},
			[]string{"stage"},
		),
		LastRunSuccess: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if the last run finished without failed tables",
			},
		),
	}
}

// SetStage marks stage as current.
func (m *Metrics) SetStage(stage string) {
	for _, s := range stages {
		v := 0.0
		if s == stage {
			v = 1
		}
		m.Stage.WithLabelValues(s).Set(v)
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
