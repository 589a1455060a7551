package background

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments for a Pool, trimmed from
// internal/background/metrics.go's WorkerPoolMetrics down to the
// job-throughput/queue-depth signals a bounded ingestion/sweep pool needs —
// the resource-snapshot and notification-latency instruments there belonged
// to the PID-monitored task queue this pool replaces.
type Metrics struct {
	JobsTotal   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	QueueDepth  prometheus.Gauge
}

// NewMetrics registers a fresh Metrics set against reg. Pass a dedicated
// *prometheus.Registry (rather than prometheus.DefaultRegisterer) in tests
// that construct more than one Pool, to avoid duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memcore",
			Subsystem: "background",
			Name:      "jobs_total",
			Help:      "Total number of background jobs processed, by type and outcome.",
		}, []string{"job_type", "status"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memcore",
			Subsystem: "background",
			Name:      "job_duration_seconds",
			Help:      "Background job execution duration in seconds, by type.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"job_type"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memcore",
			Subsystem: "background",
			Name:      "queue_depth",
			Help:      "Number of jobs currently waiting in the pool's queue.",
		}),
	}

	reg.MustRegister(m.JobsTotal, m.JobDuration, m.QueueDepth)
	return m
}
