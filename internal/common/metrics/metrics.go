package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncEntriesSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_sync_entries_synced_total",
			Help: "Total number of external entries upserted by the reconciler",
		},
	)

	SyncEntriesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_sync_entries_failed_total",
			Help: "Total number of external entries that failed mapping or upsert",
		},
	)

	SyncBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "triage_sync_batch_duration_seconds",
			Help: "Duration of a full reconciliation batch in seconds",
		},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_claims_total",
			Help: "Total number of claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	ArbitrationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_arbitration_decisions_total",
			Help: "Total number of assignment request decisions",
		},
		[]string{"action"},
	)

	LoansClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_loans_closed_total",
			Help: "Total number of applications closed by final status",
		},
		[]string{"status"},
	)
)
