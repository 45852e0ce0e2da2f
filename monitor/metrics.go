// Package monitor exposes payment counters over HTTP for Prometheus.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0rlych1kk4/stellar-remit/remitlib"
)

// Metrics counts payment submissions. It satisfies remitlib.Observer.
type Metrics struct {
	registry *prometheus.Registry

	attempts  prometheus.Counter
	successes prometheus.Counter
	failures  prometheus.Counter
	duration  prometheus.Histogram
}

var _ remitlib.Observer = (*Metrics)(nil)

// NewMetrics builds the counters on a private registry, alongside the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellar_remit_transactions_total",
			Help: "Payment submissions attempted.",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellar_remit_transactions_success_total",
			Help: "Payments accepted by the network.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stellar_remit_transactions_failure_total",
			Help: "Payment submissions that were rejected or never answered.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellar_remit_transaction_duration_seconds",
			Help:    "Time spent submitting a payment.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.successes,
		m.failures,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TransactionAttempted() { m.attempts.Inc() }
func (m *Metrics) TransactionSucceeded() { m.successes.Inc() }
func (m *Metrics) TransactionFailed()    { m.failures.Inc() }

func (m *Metrics) ObserveSubmission(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
