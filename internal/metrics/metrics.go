// Package metrics exposes pipeline counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predictive_alerts"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	candidates    *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Alert candidates by filter outcome and reason.",
		}, []string{"outcome", "reason"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_promoted_total",
			Help:      "Alerts created, by severity.",
		}, []string{"severity"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Source records rejected before evaluation.",
		}, []string{"reason"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert lifecycle transitions by target state.",
		}, []string{"to", "auto"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by channel and result.",
		}, []string{"channel", "result"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of measurement batches.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Candidate(outcome, reason string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) AlertPromoted(severity int) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues("P" + strconv.Itoa(severity)).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Transition(to string, auto bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, strconv.FormatBool(auto)).Inc()
}

func (m *Metrics) Notification(channel, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}
