package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder records facilitator events into a private registry
// so multiple instances can coexist in one process (tests included).
type PrometheusRecorder struct {
	registry  *prometheus.Registry
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facilitator",
			Name:      "events_total",
			Help:      "Facilitator event counters keyed by event type and network",
		},
		[]string{"type", "network"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facilitator",
			Name:      "latency_seconds",
			Help:      "Facilitator operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	registry.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		registry:  registry,
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
	}).Observe(d.Seconds())
}

// Handler exposes the recorder's registry for a GET /metrics route.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
