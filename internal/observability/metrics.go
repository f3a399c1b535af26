package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records session operation outcomes. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
	generation *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "operations_total",
			Help:      "Session operations by outcome",
		}, []string{"op", "outcome"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "conflicts_total",
			Help:      "Optimistic concurrency conflicts returned to callers",
		}, []string{"op"}),
		generation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "interview",
			Name:      "generation_seconds",
			Help:      "Content generation latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveOperation(op, outcome string) {
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) IncConflict(op string) {
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveGeneration(outcome string, dur time.Duration) {
	m.generation.WithLabelValues(outcome).Observe(dur.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
