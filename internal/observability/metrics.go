package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// refresh pipeline and the marker aggregator.
type Metrics struct {
	RefreshTotal    *prometheus.CounterVec // labels: outcome={success,failure,coalesced}
	RefreshDuration prometheus.Histogram
	FlightsCurrent  prometheus.Gauge
	RefreshLoading  prometheus.Gauge
	RowsDropped     prometheus.Counter

	// Aggregation metrics.
	RenderGroups     prometheus.Histogram
	AggregationCache *prometheus.CounterVec // labels: result={hit,miss}

	// Snapshot publishing metrics.
	SnapshotsPublished prometheus.Counter
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightmap",
			Name:      "refresh_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flightmap",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-replace cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FlightsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flightmap",
			Name:      "flights_current",
			Help:      "Number of flights in the current set.",
		}),
		RefreshLoading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flightmap",
			Name:      "refresh_loading",
			Help:      "1 while a refresh is in flight, 0 otherwise.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flightmap",
			Name:      "rows_dropped_total",
			Help:      "Raw feed rows discarded by validation.",
		}),
		RenderGroups: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flightmap",
			Name:      "render_groups",
			Help:      "Markers plus clusters produced per aggregation.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		AggregationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightmap",
			Name:      "aggregation_cache_total",
			Help:      "Aggregation result cache lookups by result.",
		}, []string{"result"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flightmap",
			Name:      "snapshots_published_total",
			Help:      "Flight-set snapshots published to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flightmap",
			Name:      "publish_errors_total",
			Help:      "Failed snapshot publish attempts.",
		}),
	}

	prometheus.MustRegister(
		m.RefreshTotal,
		m.RefreshDuration,
		m.FlightsCurrent,
		m.RefreshLoading,
		m.RowsDropped,
		m.RenderGroups,
		m.AggregationCache,
		m.SnapshotsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RefreshTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flightmap", Name: "refresh_total"}, []string{"outcome"}),
		RefreshDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "flightmap", Name: "refresh_duration_seconds"}),
		FlightsCurrent:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "flightmap", Name: "flights_current"}),
		RefreshLoading:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "flightmap", Name: "refresh_loading"}),
		RowsDropped:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flightmap", Name: "rows_dropped_total"}),
		RenderGroups:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "flightmap", Name: "render_groups"}),
		AggregationCache:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flightmap", Name: "aggregation_cache_total"}, []string{"result"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flightmap", Name: "snapshots_published_total"}),
		PublishErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flightmap", Name: "publish_errors_total"}),
	}
}
