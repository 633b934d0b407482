package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("inventory:low_stock").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("inventory:low_stock").End(err), err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:low_stock", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:low_stock", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("inventory:low_stock")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddLowStock(1, 2)
	require.NoError(t, m.Track("noop").End(nil))
}

func TestAddLowStock(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddLowStock(1, 3)
	m.AddLowStock(0, 2)
	require.Equal(t, 1.0, testutil.ToFloat64(m.lowStock.WithLabelValues("out")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.lowStock.WithLabelValues("low")))
}
