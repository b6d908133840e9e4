// Package metrics holds the Prometheus instruments of the credential registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "soulcert/pkg/domain-errors"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	recordsMinted     prometheus.Counter
	recordsBurned     prometheus.Counter
	publishFailures   *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

// New creates and registers the registry metrics on reg. A nil reg registers
// with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soulcert_operations_total",
			Help: "Registry operations by name and outcome code",
		}, []string{"operation", "outcome"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soulcert_operation_duration_seconds",
			Help:    "Registry operation latency including the ledger transaction",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"operation"}),
		recordsMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "soulcert_records_minted_total",
			Help: "Credentials minted by accepting an offer",
		}),
		recordsBurned: factory.NewCounter(prometheus.CounterOpts{
			Name: "soulcert_records_burned_total",
			Help: "Credentials destroyed by an authorized burn",
		}),
		publishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soulcert_issued_publish_failures_total",
			Help: "Issued notifications that could not be delivered, by sink",
		}, []string{"sink"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soulcert_record_cache_lookups_total",
			Help: "Record cache lookups by result (hit, miss, burned, error)",
		}, []string{"result"}),
	}
}

// ObserveOperation records the outcome of one service operation. The outcome
// label is "ok" or the domain error code.
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRecordsMinted() {
	if m == nil {
		return
	}
	m.recordsMinted.Inc()
}

func (m *Metrics) IncRecordsBurned() {
	if m == nil {
		return
	}
	m.recordsBurned.Inc()
}

func (m *Metrics) IncPublishFailure(sink string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
