package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the evaluator and sweeper.
type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	ViolationsTotal *prometheus.CounterVec
	CheckDuration   prometheus.Histogram
	SweepDeleted    *prometheus.CounterVec
	SweepDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rategate_checks_total",
			Help: "Rate limit checks by tier and result",
		}, []string{"tier", "result"}),
		ViolationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rategate_violations_total",
			Help: "Denied requests by tier and limit type",
		}, []string{"tier", "limit_type"}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rategate_check_duration_seconds",
			Help:    "Latency of rate limit checks",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		SweepDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rategate_sweep_deleted_total",
			Help: "Rows deleted by the retention sweeper, by table",
		}, []string{"table"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rategate_sweep_duration_seconds",
			Help:    "Duration of retention sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
