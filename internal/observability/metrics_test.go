package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountersAndGauges(t *testing.T) {
	mc := NewMetricsCollector()
	labels := map[string]string{"driver": "mysql"}

	mc.Inc(MetricWarehouseQueries, labels)
	mc.Add(MetricWarehouseQueries, 2, labels)
	mc.Set(MetricIndexObjects, 12, nil)
	mc.Set(MetricIndexObjects, 7, nil)

	queries, ok := mc.Get(MetricWarehouseQueries, map[string]string{"driver": "mysql"})
	require.True(t, ok)
	assert.Equal(t, MetricTypeCounter, queries.Type)
	assert.Equal(t, 3.0, queries.Value)

	objects, ok := mc.Get(MetricIndexObjects, nil)
	require.True(t, ok)
	assert.Equal(t, MetricTypeGauge, objects.Type)
	assert.Equal(t, 7.0, objects.Value)

	_, ok = mc.Get(MetricWarehouseQueries, map[string]string{"driver": "sqlite"})
	assert.False(t, ok)
}

func TestCollectorHistogramSummary(t *testing.T) {
	mc := NewMetricsCollector()
	for _, v := range []float64{3, 1, 5} {
		mc.Observe(MetricRetrievedTables, v, nil)
	}

	m, ok := mc.Get(MetricRetrievedTables, nil)
	require.True(t, ok)
	assert.Equal(t, MetricTypeHistogram, m.Type)
	assert.Equal(t, uint64(3), m.Count)
	assert.Equal(t, 9.0, m.Sum)
	assert.Equal(t, 3.0, m.Value)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 5.0, m.Max)
}

func TestSeriesKeyIgnoresLabelOrder(t *testing.T) {
	a := seriesKey("x", map[string]string{"b": "2", "a": "1"})
	b := seriesKey("x", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.Equal(t, "x{a=1,b=2}", a)
	assert.Equal(t, "x", seriesKey("x", nil))
}

func TestCollectorDoesNotAliasCallerLabels(t *testing.T) {
	mc := NewMetricsCollector()
	labels := map[string]string{"provider": "openai"}
	mc.Inc(MetricLLMRequests, labels)
	labels["provider"] = "claude"

	_, ok := mc.Get(MetricLLMRequests, map[string]string{"provider": "openai"})
	assert.True(t, ok)
}

func TestRecordAskMetrics(t *testing.T) {
	globalMetrics.Reset()
	t.Cleanup(globalMetrics.Reset)

	RecordAskMetrics(10*time.Millisecond, true, true, "")
	RecordAskMetrics(20*time.Millisecond, false, false, "execution")

	m := GetGlobalMetrics()
	total, _ := m.Get(MetricAskTotal, nil)
	assert.Equal(t, 2.0, total.Value)
	success, _ := m.Get(MetricAskSuccess, nil)
	assert.Equal(t, 1.0, success.Value)
	noData, _ := m.Get(MetricAskNoData, nil)
	assert.Equal(t, 1.0, noData.Value)
	failed, ok := m.Get(MetricAskFailure, map[string]string{"error_type": "execution"})
	require.True(t, ok)
	assert.Equal(t, 1.0, failed.Value)
}

func TestRecordWarehouseMetricsSkipsRowsOnError(t *testing.T) {
	globalMetrics.Reset()
	t.Cleanup(globalMetrics.Reset)

	labels := map[string]string{"driver": "sqlite"}
	RecordWarehouseMetrics("sqlite", time.Millisecond, 4, nil)
	RecordWarehouseMetrics("sqlite", time.Millisecond, 0, errors.New("no such table"))

	m := GetGlobalMetrics()
	queries, _ := m.Get(MetricWarehouseQueries, labels)
	assert.Equal(t, 2.0, queries.Value)
	errs, _ := m.Get(MetricWarehouseErrors, labels)
	assert.Equal(t, 1.0, errs.Value)
	rows, _ := m.Get(MetricWarehouseRows, labels)
	assert.Equal(t, uint64(1), rows.Count)
	assert.Equal(t, 4.0, rows.Sum)
}
