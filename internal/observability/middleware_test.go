package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := NewLogger("http").WithOutput(buf).WithLevel(LevelDebug)

	r := gin.New()
	r.Use(RecoveryMiddleware(logger), RequestLoggingMiddleware(logger), CORSWithLogging(logger))
	r.GET("/tables/:name", func(c *gin.Context) {
		c.String(http.StatusOK, "%s:%s", c.Param("name"), CorrelationID(c))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("index out of range")
	})
	return r
}

func TestRequestLoggingPropagatesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	req := httptest.NewRequest(http.MethodGet, "/tables/orders?q=secret", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "orders:abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	entries := decodeLines(t, &buf)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "abc-123", last.CorrelationID)
	assert.Equal(t, "/tables/:name", last.Fields["route"])
	assert.NotContains(t, buf.String(), "secret")
}

func TestRequestLoggingGeneratesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/orders", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddlewareReturnsInternalError(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "index out of range")
}

func TestCORSPreflight(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	req := httptest.NewRequest(http.MethodOptions, "/tables/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	unhealthy := NewHealthChecker("svc", "v")
	unhealthy.Register("memory", MemoryHealthCheck(func() (uint64, uint64) { return 99, 100 }))
	degraded := NewHealthChecker("svc", "v")
	degraded.Register("catalog_index", IndexHealthCheck(func() int { return 0 }))

	tests := []struct {
		name    string
		checker *HealthChecker
		want    int
	}{
		{"unhealthy", unhealthy, http.StatusServiceUnavailable},
		{"degraded", degraded, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", HealthHandler(tt.checker))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollector()
	mc.Inc(MetricUnsafeQuery, nil)

	r := gin.New()
	r.GET("/metrics", MetricsHandler(mc))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), MetricUnsafeQuery)
}
