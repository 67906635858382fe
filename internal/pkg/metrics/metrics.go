package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "itv_catalog"

// Metrics holds the Prometheus counters, histograms, and gauges for catalog loads.
type Metrics struct {
	// Load pipeline metrics.
	RecordsProcessed *prometheus.CounterVec   // labels: source, outcome
	LoadDuration     *prometheus.HistogramVec // labels: source
	LoadsRunning     prometheus.Gauge

	// Catalog maintenance.
	DuplicatesRemoved prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeDuration prometheus.Histogram
}

// NewMetrics creates and registers all catalog metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := build(true)

	prometheus.MustRegister(
		m.RecordsProcessed,
		m.LoadDuration,
		m.LoadsRunning,
		m.DuplicatesRemoved,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need.
func NewMetricsForTesting() *Metrics {
	return build(false)
}

func build(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      help("Source records processed by region and outcome."),
		}, []string{"source", "outcome"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      help("Duration of a complete regional load."),
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"source"}),
		LoadsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loads_running",
			Help:      help("Number of regional loads currently in progress."),
		}),
		DuplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      help("Stations deleted by the duplicate detector."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Geocoding API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
