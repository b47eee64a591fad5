// Package prometheus exposes wrapper activity as Prometheus metrics. A
// Metrics value implements isowrap.Collector and can be attached to any
// number of wrappers.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "isowrap"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics for wrapper activity
type Metrics struct {
	// Call metrics
	CallsStarted   *prometheus.CounterVec
	CallsTotal     *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	CallsRefused   *prometheus.CounterVec
	DroppedReplies *prometheus.CounterVec

	// Worker pool metrics
	WorkersAlive *prometheus.GaugeVec
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		CallsStarted: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "isowrap_calls_started_total",
				Help: "Total number of calls dispatched for execution",
			},
			[]string{"wrapper", "method"},
		),
		CallsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "isowrap_calls_total",
				Help: "Total number of completed calls",
			},
			[]string{"wrapper", "method", "status"}, // status: ok, error
		),
		CallDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isowrap_call_duration_seconds",
				Help:    "Method execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"wrapper", "method"},
		),
		CallsRefused: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "isowrap_calls_refused_total",
				Help: "Total number of calls refused during shutdown",
			},
			[]string{"wrapper"},
		),
		DroppedReplies: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "isowrap_dropped_replies_total",
				Help: "Total number of replies that could not be delivered",
			},
			[]string{"wrapper", "method"},
		),
		WorkersAlive: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "isowrap_workers_alive",
				Help: "Current number of live pool workers",
			},
			[]string{"wrapper"},
		),
	}
}

// CallStarted implements isowrap.Collector
func (m *Metrics) CallStarted(wrapper, method string) {
	m.CallsStarted.WithLabelValues(wrapper, method).Inc()
}

// CallCompleted implements isowrap.Collector
func (m *Metrics) CallCompleted(wrapper, method string, duration time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.CallsTotal.WithLabelValues(wrapper, method, status).Inc()
	m.CallDuration.WithLabelValues(wrapper, method).Observe(duration.Seconds())
}

// CallRefused implements isowrap.Collector
func (m *Metrics) CallRefused(wrapper string) {
	m.CallsRefused.WithLabelValues(wrapper).Inc()
}

// ReplyDropped implements isowrap.Collector
func (m *Metrics) ReplyDropped(wrapper, method string) {
	m.DroppedReplies.WithLabelValues(wrapper, method).Inc()
}

// WorkerUp implements isowrap.Collector
func (m *Metrics) WorkerUp(wrapper string) {
	m.WorkersAlive.WithLabelValues(wrapper).Inc()
}

// WorkerDown implements isowrap.Collector
func (m *Metrics) WorkerDown(wrapper string) {
	m.WorkersAlive.WithLabelValues(wrapper).Dec()
}
