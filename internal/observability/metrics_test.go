package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOperation("create", time.Now(), nil)
	m.ObserveOperation("create", time.Now(), errors.New("boom"))
	m.RecordRetry("complete")
	m.RecordRollover(3)
	m.RecordRollover(0)
	m.RecordMaterialized("bulk", 4)
	m.RecordMaterialized("single", 0)
	m.RecordNotification("TODOS_CHANGED", nil)
	m.RecordDigest(errors.New("blocked"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("complete")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RolloversTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RolledTasksTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MaterializedTotal.WithLabelValues("bulk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("TODOS_CHANGED", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DigestsSentTotal.WithLabelValues("error")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("create", time.Now(), nil)
		m.RecordRetry("x")
		m.RecordRollover(1)
		m.RecordMaterialized("bulk", 1)
		m.RecordNotification("x", nil)
		m.RecordDigest(nil)
	})
}
