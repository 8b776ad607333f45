package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsEvaluatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_requests_evaluated_total",
		Help: "Total number of requests evaluated by the interceptor",
	})
	requestsBlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_requests_blocked_total",
		Help: "Total number of requests short-circuited by an active mitigation",
	}, []string{"decision"})
	telemetryDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_telemetry_dropped_total",
		Help: "Total number of request records dropped because the batch queue was full",
	})
	batchesFlushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_batches_flushed_total",
		Help: "Total number of telemetry batches flushed to classification",
	})
	classifierFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_classifier_failures_total",
		Help: "Total number of batches dropped due to classifier transport or parse failures",
	})
	calibrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_calibrations_total",
		Help: "Total number of calibration decisions by outcome",
	}, []string{"decision"})
	enforcementWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_enforcement_writes_total",
		Help: "Total number of enforcement entries written to the state store",
	})
	persistenceFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_persistence_failures_total",
		Help: "Total number of history or state store write failures (mitigation not enforced)",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		requestsEvaluatedTotal,
		requestsBlockedTotal,
		telemetryDroppedTotal,
		batchesFlushedTotal,
		classifierFailuresTotal,
		calibrationsTotal,
		enforcementWritesTotal,
		persistenceFailuresTotal,
	)
}

// IncRequestEvaluated increments the evaluated requests counter.
func IncRequestEvaluated() { requestsEvaluatedTotal.Inc() }

// IncRequestBlocked increments the blocked requests counter for a decision label.
func IncRequestBlocked(decision string) { requestsBlockedTotal.WithLabelValues(decision).Inc() }

// IncTelemetryDropped increments the dropped telemetry counter.
func IncTelemetryDropped() { telemetryDroppedTotal.Inc() }

// IncBatchFlushed increments the flushed batches counter.
func IncBatchFlushed() { batchesFlushedTotal.Inc() }

// IncClassifierFailure increments the classifier failure counter.
func IncClassifierFailure() { classifierFailuresTotal.Inc() }

// IncCalibration increments the calibration counter for a decision label.
func IncCalibration(decision string) { calibrationsTotal.WithLabelValues(decision).Inc() }

// IncEnforcementWrite increments the enforcement writes counter.
func IncEnforcementWrite() { enforcementWritesTotal.Inc() }

// IncPersistenceFailure increments the persistence failure counter.
func IncPersistenceFailure() { persistenceFailuresTotal.Inc() }
