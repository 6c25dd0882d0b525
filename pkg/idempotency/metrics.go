package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes counted by Metrics
const (
	outcomeHit       = "replayed"
	outcomeMiss      = "processed"
	outcomeMismatch  = "fingerprint_mismatch"
	outcomeCollision = "in_flight"
)

// Metrics counts what the middleware did with each keyed request.
// A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	lockWait      *prometheus.HistogramVec
	storageErrors *prometheus.CounterVec
}

// NewMetrics registers the idempotency collectors on registry, or the default registerer
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rental",
			Subsystem: "idempotency",
			Name:      "requests_total",
			Help:      "Keyed requests by outcome (processed, replayed, fingerprint_mismatch, in_flight)",
		}, []string{"service", "endpoint", "method", "outcome"}),
		lockWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rental",
			Subsystem: "idempotency",
			Name:      "lock_seconds",
			Help:      "Time spent acquiring the key lock",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"service", "endpoint", "method"}),
		storageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rental",
			Subsystem: "idempotency",
			Name:      "storage_errors_total",
			Help:      "Key repository failures by operation",
		}, []string{"service", "operation"}),
	}
}

func (m *Metrics) outcome(service, endpoint, method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(service, endpoint, method, outcome).Inc()
}

// RecordHit counts a replayed response
func (m *Metrics) RecordHit(service, endpoint, method string) {
	m.outcome(service, endpoint, method, outcomeHit)
}

func (m *Metrics) RecordMiss(service, endpoint, method string) {
	m.outcome(service, endpoint, method, outcomeMiss)
}

// RecordParameterMismatch counts a key reused with a different body
func (m *Metrics) RecordParameterMismatch(service, endpoint, method string) {
	m.outcome(service, endpoint, method, outcomeMismatch)
}

// RecordConcurrentCollision counts a key whose first request is still running
func (m *Metrics) RecordConcurrentCollision(service, endpoint, method string) {
	m.outcome(service, endpoint, method, outcomeCollision)
}

func (m *Metrics) RecordLockAcquisitionDuration(service, endpoint, method string, seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(service, endpoint, method).Observe(seconds)
}

func (m *Metrics) RecordStorageError(service, operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(service, operation).Inc()
}
