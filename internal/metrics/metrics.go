package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_submitted_total",
		Help: "Payment records created by the submission coordinator.",
	})

	SubmitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_submit_failures_total",
		Help: "Submissions that ended in submit_failed.",
	})

	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Outbound gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	ReconcilePasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_passes_total",
		Help: "Completed reconciliation passes.",
	})

	ReconcilePassErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_pass_errors_total",
		Help: "Reconciliation passes abandoned because the gateway list fetch failed.",
	})

	PaymentsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_resolved_total",
		Help: "Payments moved to a terminal status by reconciliation.",
	}, []string{"status"})

	IntegrityAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_integrity_anomalies_total",
		Help: "Gateway reported a terminal status conflicting with a stored terminal status.",
	})
)
