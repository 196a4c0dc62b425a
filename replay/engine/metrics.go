package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the engine.
type Metrics struct {
	Queries  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_queries_total",
		Help: "Total queries answered, by kind and envelope status",
	}, []string{"kind", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replay_query_duration_seconds",
		Help:    "Query duration including the wait for a worker",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"kind"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replay_pool_in_flight",
		Help: "Aggregation queries currently holding a worker",
	})

	reg.MustRegister(queries, duration, inFlight)

	return &Metrics{
		Queries:  queries,
		Duration: duration,
		InFlight: inFlight,
	}
}

func (m *Metrics) observe(kind QueryKind, status string, elapsed time.Duration) {
	m.Queries.WithLabelValues(string(kind), status).Inc()
	m.Duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}
