package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"songbird/internal/core"
)

// Metrics implements core.MetricsRecorder on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	ResolutionsTotal        *prometheus.CounterVec
	ExtractionAttemptsTotal *prometheus.CounterVec
	RecognitionsTotal       *prometheus.CounterVec
	RecognitionCacheTotal   *prometheus.CounterVec
	StageDuration           *prometheus.HistogramVec
	WorkspacesSweptTotal    prometheus.Counter
}

// NewMetrics creates and registers the pipeline metrics. poolInUse, when set,
// backs the worker pool occupancy gauge.
func NewMetrics(poolInUse func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbird_resolutions_total",
				Help: "Total number of resolutions by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		ExtractionAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbird_extraction_attempts_total",
				Help: "Total number of downloader attempts by platform and result",
			},
			[]string{"platform", "result"},
		),
		RecognitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbird_recognitions_total",
				Help: "Total number of recognition calls by mode and result",
			},
			[]string{"mode", "result"},
		),
		RecognitionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbird_recognition_cache_total",
				Help: "Recognition cache lookups by result",
			},
			[]string{"result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songbird_stage_duration_seconds",
				Help:    "Time spent in each resolution stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		WorkspacesSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songbird_workspaces_swept_total",
				Help: "Total number of orphaned workspaces removed",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ResolutionsTotal,
		m.ExtractionAttemptsTotal,
		m.RecognitionsTotal,
		m.RecognitionCacheTotal,
		m.StageDuration,
		m.WorkspacesSweptTotal,
	)

	if poolInUse != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "songbird_workerpool_in_use",
				Help: "Number of worker pool slots currently held",
			},
			func() float64 { return float64(poolInUse()) },
		))
	}

	return m
}

// TrackActiveUsers exposes the number of users the flood limiter currently tracks.
func (m *Metrics) TrackActiveUsers(activeUsers func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "songbird_flood_active_users",
			Help: "Number of users with a live flood window",
		},
		func() float64 { return float64(activeUsers()) },
	))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordResolution(platform core.Platform, outcome string) {
	m.ResolutionsTotal.WithLabelValues(string(platform), outcome).Inc()
}

func (m *Metrics) RecordStage(stage core.State, d time.Duration) {
	m.StageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

func (m *Metrics) RecordExtractionAttempt(platform core.Platform, result string) {
	m.ExtractionAttemptsTotal.WithLabelValues(string(platform), result).Inc()
}

func (m *Metrics) RecordRecognition(mode core.RecognitionMode, result string) {
	m.RecognitionsTotal.WithLabelValues(string(mode), result).Inc()
}

func (m *Metrics) RecordRecognitionCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RecognitionCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordWorkspaceSweep(removed int) {
	m.WorkspacesSweptTotal.Add(float64(removed))
}
