package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Balance operation metrics
	BalanceOperations        *prometheus.CounterVec
	BalanceOperationDuration *prometheus.HistogramVec
	IdempotentReplays        *prometheus.CounterVec

	// Transfer metrics
	TransfersCompleted prometheus.Counter
	TransfersReversed  prometheus.Counter
	TransferDuration   prometheus.Histogram
	TransferAmount     prometheus.Histogram
	TransferErrors     *prometheus.CounterVec

	// Account metrics
	AccountsCreated      prometheus.Counter
	AccountStatusChanges *prometheus.CounterVec

	// Concurrency metrics
	LockContention      *prometheus.CounterVec
	ReferenceCollisions prometheus.Counter

	// Outbox metrics
	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter

	// Reconciliation metrics
	LedgerConsistent prometheus.Gauge

	// API metrics
	AuthFailures  *prometheus.CounterVec
	RateLimitHits prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the metrics and registers them on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Balance operation metrics
		BalanceOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_balance_operations_total",
				Help: "Total balance operations by type and outcome",
			},
			[]string{"operation", "outcome"},
		),
		BalanceOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletledger_balance_operation_duration_seconds",
				Help:    "Duration of balance operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		IdempotentReplays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_idempotent_replays_total",
				Help: "Operations answered from an existing ledger record",
			},
			[]string{"operation"},
		),

		// Transfer metrics
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_transfers_completed_total",
			Help: "Total number of transfers completed",
		}),
		TransfersReversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_transfers_reversed_total",
			Help: "Total number of transfers reversed",
		}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletledger_transfer_duration_seconds",
			Help:    "Duration of transfer operations",
			Buckets: prometheus.DefBuckets,
		}),
		TransferAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletledger_transfer_amount_minor_units",
			Help:    "Transfer amounts in minor units",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		}),
		TransferErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_transfer_errors_total",
				Help: "Total number of transfer errors by kind",
			},
			[]string{"error_kind"},
		),

		// Account metrics
		AccountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_accounts_created_total",
			Help: "Total number of accounts created",
		}),
		AccountStatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_account_status_changes_total",
				Help: "Account status changes by target status",
			},
			[]string{"status"},
		),

		// Concurrency metrics
		LockContention: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_lock_contention_total",
				Help: "Operations aborted because a lock wait timed out",
			},
			[]string{"operation"},
		),
		ReferenceCollisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_reference_collisions_total",
			Help: "Reference id collisions that forced a re-roll",
		}),

		// Outbox metrics
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_outbox_published_total",
			Help: "Outbox events published",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_outbox_failures_total",
			Help: "Outbox events that failed to publish",
		}),

		// Reconciliation metrics
		LedgerConsistent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walletledger_ledger_consistent",
			Help: "1 when the last consistency check passed, 0 otherwise",
		}),

		// API metrics
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletledger_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletledger_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}
