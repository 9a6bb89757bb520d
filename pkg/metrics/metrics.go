// Package metrics exposes the simulator's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the sessions report into. One registry is
// shared across parallel trading days; the counters are concurrency-safe.
type Metrics struct {
	registry *prometheus.Registry
	logger   log.Logger

	OrdersSubmitted prometheus.Counter
	OrdersRejected  prometheus.Counter
	TradesExecuted  prometheus.Counter
	TicksProcessed  prometheus.Counter
	StrategyErrors  prometheus.Counter
	SessionsClosed  prometheus.Counter
}

// New creates a metrics set under the given namespace.
func New(namespace string, logger log.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		logger:   logger,
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Total number of orders submitted to the matching engine",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Total number of orders rejected by validation",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Total number of trades executed",
		}),
		TicksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_processed_total",
			Help:      "Total number of scheduler ticks processed",
		}),
		StrategyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_errors_total",
			Help:      "Total number of trader decision errors skipped",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of trading sessions run to completion",
		}),
	}

	registry.MustRegister(
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.TradesExecuted,
		m.TicksProcessed,
		m.StrategyErrors,
		m.SessionsClosed,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP listener for /metrics. It blocks.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if m.logger != nil {
		m.logger.Info("metrics endpoint listening", "addr", addr)
	}
	return http.ListenAndServe(addr, mux)
}
