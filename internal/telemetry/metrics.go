package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports inference counters and latency to Prometheus.
type Metrics struct {
	records   *prometheus.CounterVec
	latency   prometheus.Histogram
	arenaUsed prometheus.Gauge
}

// NewMetrics registers the locus collectors with reg. Passing a fresh
// registry keeps tests independent of the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locus_records_total",
				Help: "Records processed, by outcome",
			},
			[]string{"outcome"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "locus_inference_duration_seconds",
				Help:    "Kernel invoke latency",
				Buckets: prometheus.ExponentialBuckets(10e-6, 2, 14),
			},
		),
		arenaUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "locus_arena_used_bytes",
				Help: "Bytes of the tensor arena planned by the runner",
			},
		),
	}
	reg.MustRegister(m.records, m.latency, m.arenaUsed)
	for _, o := range []Outcome{OutcomeOK, OutcomeParseError, OutcomeInvokeError} {
		m.records.WithLabelValues(string(o))
	}
	return m
}

func (m *Metrics) Record(o Outcome, latency time.Duration) {
	m.records.WithLabelValues(string(o)).Inc()
	if o == OutcomeOK {
		m.latency.Observe(latency.Seconds())
	}
}

func (m *Metrics) SetArenaUsed(n int) {
	m.arenaUsed.Set(float64(n))
}
