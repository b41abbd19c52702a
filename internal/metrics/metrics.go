package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusledger_reservations_total",
		Help: "Reserve outcomes by pool kind",
	}, []string{"kind", "outcome"})

	ConflictRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusledger_conflict_retries_total",
		Help: "Transactions retried after concurrent-writer conflicts",
	})

	PaymentsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusledger_payments_applied_total",
		Help: "Payment applications by outcome (applied, duplicate, overpayment)",
	}, []string{"outcome"})

	ExpiredAllocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusledger_expired_allocations_total",
		Help: "Allocations transitioned to EXPIRED by the reconciliation sweep",
	})

	TxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusledger_tx_duration_seconds",
		Help:    "Latency distribution of ledger transactions",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"})
)
