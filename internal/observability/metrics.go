package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType is the kind of series a metric is
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is one labelled series. For histograms Value is the running mean and the
// summary fields hold count, sum and range.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Count     uint64            `json:"count,omitempty"`
	Sum       float64           `json:"sum,omitempty"`
	Min       float64           `json:"min,omitempty"`
	Max       float64           `json:"max,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// MetricsCollector keeps in-process series, served as JSON on /metrics
type MetricsCollector struct {
	mu     sync.RWMutex
	series map[string]*Metric
}

// NewMetricsCollector returns an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{series: make(map[string]*Metric)}
}

// seriesKey renders name{a=1,b=2} with label names sorted
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// seriesFor returns the stored metric for name and labels, creating it with type t.
// Callers hold the write lock.
func (mc *MetricsCollector) seriesFor(name string, t MetricType, labels map[string]string) *Metric {
	key := seriesKey(name, labels)
	m, ok := mc.series[key]
	if !ok {
		m = &Metric{Name: name, Type: t, Labels: copyLabels(labels)}
		mc.series[key] = m
	}
	return m
}

// Inc adds one to a counter
func (mc *MetricsCollector) Inc(name string, labels map[string]string) {
	mc.Add(name, 1, labels)
}

// Add adds delta to a counter
func (mc *MetricsCollector) Add(name string, delta float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.seriesFor(name, MetricTypeCounter, labels)
	m.Value += delta
	m.UpdatedAt = time.Now()
}

// Set overwrites a gauge
func (mc *MetricsCollector) Set(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.seriesFor(name, MetricTypeGauge, labels)
	m.Value = value
	m.UpdatedAt = time.Now()
}

// Observe records one histogram sample
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.seriesFor(name, MetricTypeHistogram, labels)
	if m.Count == 0 || value < m.Min {
		m.Min = value
	}
	if m.Count == 0 || value > m.Max {
		m.Max = value
	}
	m.Count++
	m.Sum += value
	m.Value = m.Sum / float64(m.Count)
	m.UpdatedAt = time.Now()
}

// Get returns a copy of one series
func (mc *MetricsCollector) Get(name string, labels map[string]string) (Metric, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m, ok := mc.series[seriesKey(name, labels)]
	if !ok {
		return Metric{}, false
	}
	return *m, true
}

// GetAll returns a copy of every series keyed by series key
func (mc *MetricsCollector) GetAll() map[string]Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]Metric, len(mc.series))
	for k, m := range mc.series {
		out[k] = *m
	}
	return out
}

// Reset drops every series
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.series = make(map[string]*Metric)
}

// Metric names
const (
	MetricAskTotal          = "warehouse_ai_asks_total"
	MetricAskDuration       = "warehouse_ai_ask_duration_seconds"
	MetricAskSuccess        = "warehouse_ai_asks_success_total"
	MetricAskFailure        = "warehouse_ai_asks_failure_total"
	MetricAskNoData         = "warehouse_ai_no_data_answers_total"
	MetricUnsafeQuery       = "warehouse_ai_unsafe_queries_total"
	MetricRetrievalDuration = "warehouse_ai_retrieval_duration_seconds"
	MetricRetrievedTables   = "warehouse_ai_retrieved_tables"

	MetricIndexObjects  = "semantic_index_objects"
	MetricIndexBuildDur = "semantic_index_build_duration_seconds"

	MetricLLMRequests      = "llm_requests_total"
	MetricLLMDuration      = "llm_request_duration_seconds"
	MetricLLMTokens        = "llm_tokens_total"
	MetricLLMErrors        = "llm_errors_total"
	MetricEmbeddingRequest = "llm_embedding_requests_total"

	MetricWarehouseQueries  = "warehouse_queries_total"
	MetricWarehouseDuration = "warehouse_query_duration_seconds"
	MetricWarehouseErrors   = "warehouse_errors_total"
	MetricWarehouseRows     = "warehouse_rows_returned"

	// snapshot store
	MetricDBQueries  = "database_queries_total"
	MetricDBDuration = "database_query_duration_seconds"
	MetricDBErrors   = "database_errors_total"

	MetricHTTPRequests     = "http_requests_total"
	MetricHTTPDuration     = "http_request_duration_seconds"
	MetricHTTPErrors       = "http_errors_total"
	MetricHTTPResponseSize = "http_response_size_bytes"
	MetricRateLimited      = "http_rate_limited_total"
	MetricPanicsRecovered  = "http_panics_recovered_total"
)

var globalMetrics = NewMetricsCollector()

// GetGlobalMetrics returns the process-wide collector
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

// RecordAskMetrics records one pass through the ask pipeline. errorType labels failures.
func RecordAskMetrics(duration time.Duration, success bool, noData bool, errorType string) {
	m := GetGlobalMetrics()
	m.Inc(MetricAskTotal, nil)
	m.Observe(MetricAskDuration, duration.Seconds(), nil)

	if noData {
		m.Inc(MetricAskNoData, nil)
	}
	if success {
		m.Inc(MetricAskSuccess, nil)
		return
	}
	var labels map[string]string
	if errorType != "" {
		labels = map[string]string{"error_type": errorType}
	}
	m.Inc(MetricAskFailure, labels)
}

// RecordLLMMetrics records one embed or generate call
func RecordLLMMetrics(provider, operation string, duration time.Duration, tokens int, err error) {
	m := GetGlobalMetrics()
	labels := map[string]string{"provider": provider, "operation": operation}

	m.Inc(MetricLLMRequests, labels)
	m.Observe(MetricLLMDuration, duration.Seconds(), labels)
	if operation == "embed" {
		m.Inc(MetricEmbeddingRequest, map[string]string{"provider": provider})
	}
	if tokens > 0 {
		m.Add(MetricLLMTokens, float64(tokens), labels)
	}
	if err != nil {
		m.Inc(MetricLLMErrors, labels)
	}
}

// RecordWarehouseMetrics records one warehouse query; rows are only observed on success
func RecordWarehouseMetrics(driver string, duration time.Duration, rows int, err error) {
	m := GetGlobalMetrics()
	labels := map[string]string{"driver": driver}

	m.Inc(MetricWarehouseQueries, labels)
	m.Observe(MetricWarehouseDuration, duration.Seconds(), labels)
	if err != nil {
		m.Inc(MetricWarehouseErrors, labels)
		return
	}
	m.Observe(MetricWarehouseRows, float64(rows), labels)
}

// RecordDBMetrics records one snapshot store operation
func RecordDBMetrics(operation string, duration time.Duration, err error) {
	m := GetGlobalMetrics()
	labels := map[string]string{"operation": operation}

	m.Inc(MetricDBQueries, labels)
	m.Observe(MetricDBDuration, duration.Seconds(), labels)
	if err != nil {
		m.Inc(MetricDBErrors, labels)
	}
}

// RecordHTTPMetrics records one finished request. route is the gin route template.
func RecordHTTPMetrics(method, route string, status int, duration time.Duration, bytes int) {
	m := GetGlobalMetrics()
	labels := map[string]string{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}

	m.Inc(MetricHTTPRequests, labels)
	m.Observe(MetricHTTPDuration, duration.Seconds(), labels)
	if status >= 400 {
		m.Inc(MetricHTTPErrors, labels)
	}
	if bytes > 0 {
		m.Observe(MetricHTTPResponseSize, float64(bytes), labels)
	}
}
