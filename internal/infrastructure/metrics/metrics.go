package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	EntriesApplied      *prometheus.CounterVec
	EntriesUpdated      prometheus.Counter
	EntriesRetracted    prometheus.Counter
	InsufficientBalance prometheus.Counter
	LedgerDuration      *prometheus.HistogramVec
	LedgerErrors        *prometheus.CounterVec

	// Document store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	StoreRetries    *prometheus.CounterVec

	// Transaction metrics
	TxAttempts *prometheus.CounterVec
	TxDuration prometheus.Histogram

	// Worker pool metrics
	WorkerSubmitted  *prometheus.CounterVec
	WorkerProcessed  *prometheus.CounterVec
	WorkerFailed     *prometheus.CounterVec
	WorkerDropped    *prometheus.CounterVec
	WorkerQueueDepth *prometheus.GaugeVec

	// Redis metrics
	CacheLookups    *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec
	RedisOperations *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		EntriesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_entries_applied_total",
				Help: "Total number of ledger entries applied by kind",
			},
			[]string{"kind"},
		),
		EntriesUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_entries_updated_total",
			Help: "Total number of ledger entries updated",
		}),
		EntriesRetracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_entries_retracted_total",
			Help: "Total number of ledger entries retracted",
		}),
		InsufficientBalance: factory.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_insufficient_balance_total",
			Help: "Total number of mutations rejected for insufficient stock",
		}),
		LedgerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockledger_ledger_operation_duration_seconds",
				Help:    "Duration of ledger mutations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		LedgerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_ledger_errors_total",
				Help: "Total number of ledger errors by type",
			},
			[]string{"error_type"},
		),

		// Document store metrics
		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_store_operations_total",
				Help: "Total document store attempts by outcome",
			},
			[]string{"operation", "collection", "outcome"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockledger_store_operation_duration_seconds",
				Help:    "Duration of document store attempts",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "collection"},
		),
		StoreRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_store_retries_total",
				Help: "Total document store retries",
			},
			[]string{"operation", "collection"},
		),

		// Transaction metrics
		TxAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_tx_attempts_total",
				Help: "Total transaction attempts by outcome",
			},
			[]string{"outcome"},
		),
		TxDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockledger_tx_duration_seconds",
			Help:    "Duration of transactions including retries",
			Buckets: prometheus.DefBuckets,
		}),

		// Worker pool metrics
		WorkerSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_worker_submitted_total",
				Help: "Total work items submitted",
			},
			[]string{"pool"},
		),
		WorkerProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_worker_processed_total",
				Help: "Total work items processed",
			},
			[]string{"pool"},
		),
		WorkerFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_worker_failed_total",
				Help: "Total work items that returned an error",
			},
			[]string{"pool"},
		),
		WorkerDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_worker_dropped_total",
				Help: "Total work items rejected because the queue was full",
			},
			[]string{"pool"},
		),
		WorkerQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockledger_worker_queue_depth",
				Help: "Current number of queued work items",
			},
			[]string{"pool"},
		),

		// Redis metrics
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_cache_lookups_total",
				Help: "Balance cache lookups by result",
			},
			[]string{"result"},
		),
		RedisErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),
		RedisOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),

		// Audit metrics
		AuditLogsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_audit_logs_total",
				Help: "Total audit logs written",
			},
			[]string{"action", "status"},
		),
	}
}
