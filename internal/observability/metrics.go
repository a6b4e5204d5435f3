package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_exposure"

// Metrics holds the Prometheus counters, histograms, and gauges for the exposure pipeline.
type Metrics struct {
	SnapshotsTotal   *prometheus.CounterVec // labels: reason={ok,empty_index,index_build_failed,no_cities,error}
	SnapshotDuration prometheus.Histogram
	PipelineRunning  prometheus.Gauge

	// Snapshot contents.
	QuakesIndexed prometheus.Gauge
	CitiesScored  prometheus.Gauge
	RowsRejected  *prometheus.CounterVec // labels: kind={quake,city}, reason

	// Upstream fetches.
	UpstreamRequests *prometheus.CounterVec   // labels: source={usgs,naturalearth}, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: source
	CityCache        *prometheus.CounterVec   // labels: result={hit,miss}

	ResultsPublished prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SnapshotsTotal,
		m.SnapshotDuration,
		m.PipelineRunning,
		m.QuakesIndexed,
		m.CitiesScored,
		m.RowsRejected,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CityCache,
		m.ResultsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Completed exposure snapshots by reason code.",
		}, []string{"reason"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of a full fetch, analyze and publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		QuakesIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quakes_indexed",
			Help:      "Earthquake events in the most recent spatial index.",
		}),
		CitiesScored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cities_scored",
			Help:      "Cities with a score in the most recent snapshot.",
		}),
		RowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Quake and city rows rejected during parsing or scoring.",
		}, []string{"kind", "reason"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream data requests by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream data request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"source"}),
		CityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_cache_total",
			Help:      "In-process city cache lookups by result.",
		}, []string{"result"}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      "Scored city records written to the sink topic.",
		}),
	}
}
