package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsProcessed tracks faults drained from the error queue
	ErrorsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_errors_processed_total",
			Help: "Total number of normalized errors processed by the event processor",
		},
		[]string{"kind", "severity"},
	)

	// SideEffectFailures tracks side effects that errored or panicked in the drain loop
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_side_effect_failures_total",
			Help: "Total number of failed error-processing side effects",
		},
		[]string{"step"},
	)

	// ErrorQueueDepth tracks entries waiting in each processor's error queue
	ErrorQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faultline_error_queue_depth",
			Help: "Number of entries waiting in the error queue",
		},
		[]string{"processor"},
	)

	// RetryAttempts tracks retry orchestrator outcomes
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_retry_attempts_total",
			Help: "Total number of retry orchestrator attempt outcomes",
		},
		[]string{"outcome"},
	)

	// RetryBackoff tracks backoff delays applied between attempts
	RetryBackoff = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faultline_retry_backoff_seconds",
			Help:    "Backoff delay applied before a retry attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	// CircuitPhase tracks the breaker phase per resource (0 closed, 1 open, 2 half-open)
	CircuitPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faultline_circuit_phase",
			Help: "Circuit breaker phase per resource key",
		},
		[]string{"resource"},
	)

	// CircuitTransitions tracks breaker phase changes
	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_circuit_transitions_total",
			Help: "Total number of circuit breaker phase transitions",
		},
		[]string{"resource", "from", "to"},
	)

	// CircuitRejections tracks calls short-circuited by an open breaker
	CircuitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_circuit_rejections_total",
			Help: "Total number of calls rejected by an open circuit",
		},
		[]string{"resource"},
	)

	// OperationLatency tracks wall time of breaker-protected calls, retries included
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_operation_latency_seconds",
			Help:    "Latency of circuit-protected operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "result"},
	)

	// AuditWrites tracks writes to external audit sinks
	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_audit_writes_total",
			Help: "Total number of audit sink writes",
		},
		[]string{"sink", "result"},
	)

	// DBConnectionPoolUsage tracks the percentage of audit database connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_db_connection_pool_usage_percent",
			Help: "Percentage of the audit database connection pool in use",
		},
	)
)
