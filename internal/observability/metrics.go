// Package observability holds the planner's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dayplanner"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	RetriesTotal       *prometheus.CounterVec
	RolloversTotal     prometheus.Counter
	RolledTasksTotal   prometheus.Counter
	MaterializedTotal  *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	DigestsSentTotal   *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "operations_total",
			Help:      "Task service operations by name and outcome",
		}, []string{"operation", "status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "operation_duration_seconds",
			Help:      "Task service operation latency, retries included",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "retries_total",
			Help:      "Transactions re-run after a transient storage failure",
		}, []string{"operation"}),
		RolloversTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollover",
			Name:      "runs_total",
			Help:      "Rollover passes that ran to completion",
		}),
		RolledTasksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollover",
			Name:      "tasks_total",
			Help:      "Overdue tasks carried forward to today",
		}),
		MaterializedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurring",
			Name:      "materialized_total",
			Help:      "Virtual instances turned into stored tasks",
		}, []string{"mode"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Change notifications by type and delivery outcome",
		}, []string{"type", "status"}),
		DigestsSentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "sent_total",
			Help:      "Morning digests by delivery outcome",
		}, []string{"status"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation records one façade call.
func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, status(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordRetry(op string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(op).Inc()
}

// RecordRollover counts a finished pass and the tasks it moved.
func (m *Metrics) RecordRollover(moved int) {
	if m == nil {
		return
	}
	m.RolloversTotal.Inc()
	m.RolledTasksTotal.Add(float64(moved))
}

// RecordMaterialized counts n instances created in mode "single" or "bulk".
func (m *Metrics) RecordMaterialized(mode string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MaterializedTotal.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) RecordNotification(eventType string, err error) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(eventType, status(err)).Inc()
}

func (m *Metrics) RecordDigest(err error) {
	if m == nil {
		return
	}
	m.DigestsSentTotal.WithLabelValues(status(err)).Inc()
}
