// Package metrics exposes the Prometheus collectors shared by the will,
// factory, escrow and asset services and the event relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smartwill/lastwill/internal/apperr"
)

// Metrics provides observability for state-changing operations.
type Metrics struct {
	// Operation outcomes by component, operation and error code
	Operations *prometheus.CounterVec

	// Operation latency including the store transaction
	OperationLatency *prometheus.HistogramVec

	// Outbox events handed to the configured sink
	EventsPublished *prometheus.CounterVec

	// Relay batches that failed to publish
	RelayFailures prometheus.Counter

	// Heir allocations released to heirs
	Executions prometheus.Counter
}

// New registers every collector with reg. Passing a fresh registry keeps
// tests isolated from the default one.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lastwill_operations_total",
			Help: "Total state-changing operations by component, operation and outcome",
		}, []string{"component", "operation", "outcome"}), // outcome: "ok", an error code, or "error"

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lastwill_operation_duration_seconds",
			Help:    "Duration of state-changing operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"component", "operation"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lastwill_events_published_total",
			Help: "Total outbox events published by kind",
		}, []string{"kind"}),

		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "lastwill_relay_failures_total",
			Help: "Total outbox relay batches that failed to publish",
		}),

		Executions: f.NewCounter(prometheus.CounterOpts{
			Name: "lastwill_heir_executions_total",
			Help: "Total heir allocations released",
		}),
	}
}

// ObserveOperation records the outcome and latency of one operation.
func (m *Metrics) ObserveOperation(component, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperr.CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	m.Operations.WithLabelValues(component, operation, outcome).Inc()
	m.OperationLatency.WithLabelValues(component, operation).Observe(time.Since(started).Seconds())
}

// IncrementPublished records a published event.
func (m *Metrics) IncrementPublished(kind string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(kind).Inc()
	}
}

// IncrementRelayFailure records a failed relay batch.
func (m *Metrics) IncrementRelayFailure() {
	if m != nil {
		m.RelayFailures.Inc()
	}
}

// IncrementExecution records a released heir allocation.
func (m *Metrics) IncrementExecution() {
	if m != nil {
		m.Executions.Inc()
	}
}
