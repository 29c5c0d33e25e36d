package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nnresample"

// Metrics holds the Prometheus counters and histograms for the resampling service.
type Metrics struct {
	Requests        *prometheus.CounterVec // labels: outcome={ok,invalid,error}
	ResamplerCache  *prometheus.CounterVec // labels: result={hit,miss}
	RequestDuration prometheus.Histogram
	TargetPoints    prometheus.Histogram
	ValidFraction   prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg. evaluated, if
// non-nil, is exported as a gauge of lazy tasks run so far.
func NewMetrics(reg prometheus.Registerer, evaluated func() float64) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Resample requests by outcome.",
		}, []string{"outcome"}),
		ResamplerCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resampler_cache_total",
			Help:      "Resampler cache lookups by result.",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of a resample request including materialization.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		TargetPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_points",
			Help:      "Number of target points per request.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}),
		ValidFraction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "valid_fraction",
			Help:      "Fraction of target points that found a source neighbour.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	reg.MustRegister(
		m.Requests,
		m.ResamplerCache,
		m.RequestDuration,
		m.TargetPoints,
		m.ValidFraction,
	)
	if evaluated != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lazy_tasks_evaluated",
			Help:      "Deferred tasks evaluated since start.",
		}, evaluated))
	}

	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), nil)
}
