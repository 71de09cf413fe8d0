package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// batch conversion pipeline.
type Metrics struct {
	FilesConverted prometheus.Counter
	FilesSkipped   prometheus.Counter
	FileErrors     prometheus.Counter
	BatchRunning   prometheus.Gauge

	JobDuration prometheus.Histogram
}

// NewMetrics creates and registers all batch metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesConverted,
		m.FilesSkipped,
		m.FileErrors,
		m.BatchRunning,
		m.JobDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesConverted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridalign",
			Name:      "files_converted_total",
			Help:      "Total files written by conversion or crop jobs.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridalign",
			Name:      "files_skipped_total",
			Help:      "Total files skipped as already converted or already present.",
		}),
		FileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridalign",
			Name:      "file_errors_total",
			Help:      "Total per-file job failures.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridalign",
			Name:      "batch_running",
			Help:      "1 while a batch run is in flight, 0 otherwise.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridalign",
			Name:      "job_duration_seconds",
			Help:      "Duration of one file conversion or crop.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
}
