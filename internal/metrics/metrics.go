/**
 * @description
 * Prometheus collectors for the settlement engine. Exposed on /metrics and
 * folded into /health: a failed audit write never blocks money movement, but
 * it must be visible, so the last audit outcome feeds the health check.
 */

package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transactions_total",
		Help: "Journal records driven to a terminal state, by kind and status.",
	}, []string{"kind", "status"})

	cascadesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_cascades_total",
		Help: "System-generated cascade records, by trigger reason.",
	}, []string{"reason"})

	auditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_audit_write_failures_total",
		Help: "Audit entries that could not be persisted alongside a settlement.",
	})

	auditHealthyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_audit_healthy",
		Help: "1 when the most recent audit write succeeded, 0 otherwise.",
	})

	notificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_notification_failures_total",
		Help: "Best-effort notifications that could not be dispatched post-commit.",
	})

	auditDegraded atomic.Bool
)

func init() {
	auditHealthyGauge.Set(1)
}

// TransactionSettled records a terminal transition.
func TransactionSettled(kind, status string) {
	transactionsSettled.WithLabelValues(kind, status).Inc()
}

// CascadeGenerated records a system-generated cascade record.
func CascadeGenerated(reason string) {
	cascadesGenerated.WithLabelValues(reason).Inc()
}

// AuditWriteFailed marks the audit trail degraded.
func AuditWriteFailed() {
	auditWriteFailures.Inc()
	auditHealthyGauge.Set(0)
	auditDegraded.Store(true)
}

// AuditWriteSucceeded restores the audit health signal.
func AuditWriteSucceeded() {
	auditHealthyGauge.Set(1)
	auditDegraded.Store(false)
}

// AuditHealthy reports whether the most recent audit write succeeded.
func AuditHealthy() bool {
	return !auditDegraded.Load()
}

// NotificationFailed records a dropped best-effort notification.
func NotificationFailed() {
	notificationFailures.Inc()
}
