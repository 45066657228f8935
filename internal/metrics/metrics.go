package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the harvester's Prometheus collectors.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	Records       *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Retries       prometheus.Counter
	LastSuccess   prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_cycles_total",
			Help: "Completed harvest cycles by result",
		}, []string{"result"}), // result: "ok" or the fault kind

		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_records_total",
			Help: "Records seen per pipeline stage",
		}, []string{"stage"}), // fetched, filtered, written, archived

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_cycle_duration_seconds",
			Help:    "Wall time of one fetch/dedup/write cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),

		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "harvester_cycle_retries_total",
			Help: "Cycle attempts retried after a transient failure",
		}),

		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cycle",
		}),
	}
}

// Discard returns collectors bound to a throwaway registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordStage adds n records to a pipeline stage counter.
func (m *Metrics) RecordStage(stage string, n int) {
	if n > 0 {
		m.Records.WithLabelValues(stage).Add(float64(n))
	}
}
