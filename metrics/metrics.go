// Package metrics holds the prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bygga"

// Outcome labels shared by the counters
const (
	OutcomeSuccess            = "success"
	OutcomeRejected           = "rejected"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeUpstreamError      = "upstream_error"
	OutcomeCorrelationTimeout = "correlation_timeout"
	OutcomePersistenceError   = "persistence_error"
	OutcomeReceived           = "received"
	OutcomeDuplicate          = "duplicate"
)

var correlationBuckets = []float64{1, 2, 3, 4, 5, 6, 8, 10}

// Metrics owns a private registry so tests and multiple app instances never collide.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal       *prometheus.CounterVec
	correlationAttempts prometheus.Histogram
	webhookTotal        *prometheus.CounterVec
	ordersTotal         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Number of task dispatch outcomes",
		}, []string{"outcome"}),
		correlationAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_correlation_attempts",
			Help:      "Poll attempts needed to find the run started by a dispatch",
			Buckets:   correlationBuckets,
		}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_total",
			Help:      "Number of payment webhook outcomes",
		}, []string{"outcome"}),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Number of order creation outcomes",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatchTotal,
		m.correlationAttempts,
		m.webhookTotal,
		m.ordersTotal,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m *Metrics) ObserveCorrelationAttempts(attempts int) {
	if m == nil {
		return
	}
	m.correlationAttempts.Observe(float64(attempts))
}

func (m *Metrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m *Metrics) RecordOrder(outcome string) {
	if m == nil {
		return
	}
	m.ordersTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}
