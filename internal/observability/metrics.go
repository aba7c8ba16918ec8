package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	RelayEntries    prometheus.Gauge
	RelayEvents     *prometheus.CounterVec
	RelayWatchers   prometheus.Gauge
	Uploads         *prometheus.CounterVec
	UploadBytes     *prometheus.HistogramVec
	AnalyzeRequests *prometheus.CounterVec
	AnalyzeLatency  prometheus.Histogram

	gatherer prometheus.Gatherer
	stages   *stageWindow
}

// NewMetrics registers the instruments on reg. A nil reg uses a fresh private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		RelayEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_entries",
			Help:      "Uploads currently waiting in the relay.",
		}),
		RelayEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Relay store events by type.",
		}, []string{"event"}),
		RelayWatchers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_watchers",
			Help:      "Open upload-ready event streams.",
		}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload endpoint calls by outcome.",
		}, []string{"outcome"}),
		UploadBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Upload payload size before and after transcoding.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		}, []string{"stage"}),
		AnalyzeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_requests_total",
			Help:      "Analysis proxy calls by outcome.",
		}, []string{"outcome"}),
		AnalyzeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_latency_ms",
			Help:      "Round trip to the analysis API in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		gatherer: reg,
		stages:   newStageWindow(256),
	}
}

// ObserveStage records a latency sample for the rolling window and, for the upstream call,
// the histogram.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	m.stages.Observe(stage, ms)
	if stage == StageAnalyzeUpstream {
		m.AnalyzeLatency.Observe(ms)
	}
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
