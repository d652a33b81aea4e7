package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID in both directions
const RequestIDHeader = "X-Request-ID"

// correlationKey is where handlers can read the ID from the gin context
const correlationKey = "correlation_id"

// countingWriter counts the bytes written to the client
type countingWriter struct {
	gin.ResponseWriter
	written int
}

func (w *countingWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func (w *countingWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.written += n
	return n, err
}

// routeOf returns the matched route template so metrics do not fan out per query string.
// Unmatched requests share one label.
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// RequestLoggingMiddleware attaches a correlation ID to the request context and logs one
// line per finished request. Query strings are not logged; they can carry question text.
func RequestLoggingMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(RequestIDHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Set(correlationKey, correlationID)
		c.Header(RequestIDHeader, correlationID)

		ctx := WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		writer := &countingWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := routeOf(c)
		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"route":       route,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"bytes":       writer.written,
			"ip":          c.ClientIP(),
		}

		switch {
		case len(c.Errors) > 0:
			logger.Error(ctx, "Request failed", c.Errors.Last().Err, fields)
		case status >= http.StatusInternalServerError:
			logger.Warn(ctx, "Request finished with server error", fields)
		case status >= http.StatusBadRequest:
			logger.Info(ctx, "Request rejected", fields)
		default:
			logger.Info(ctx, "Request finished", fields)
		}

		RecordHTTPMetrics(c.Request.Method, route, status, duration, writer.written)
	}
}

// CorrelationID returns the ID set by RequestLoggingMiddleware, or ""
func CorrelationID(c *gin.Context) string {
	return c.GetString(correlationKey)
}

// RecoveryMiddleware turns a handler panic into a 500 with the standard error body
func RecoveryMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			logger.Error(c.Request.Context(), "Handler panicked", fmt.Errorf("%v", recovered), map[string]interface{}{
				"method": c.Request.Method,
				"route":  routeOf(c),
			})
			GetGlobalMetrics().Inc(MetricPanicsRecovered, nil)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "An unexpected error occurred",
				},
			})
		}()

		c.Next()
	}
}

// HealthHandler serves the aggregated report. Only unhealthy maps to 503; a degraded
// service still answers questions.
func HealthHandler(checker *HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := checker.GetHealthResponse(c.Request.Context())
		status := http.StatusOK
		if response.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response)
	}
}

// MetricsHandler serves a JSON snapshot of the collector
func MetricsHandler(collector *MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":   collector.GetAll(),
			"timestamp": time.Now().UTC(),
		})
	}
}

// CORSWithLogging allows browser clients to call the ask endpoints and answers preflights
func CORSWithLogging(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		header.Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		if origin := c.GetHeader("Origin"); origin != "" {
			logger.Debug(c.Request.Context(), "CORS preflight", map[string]interface{}{
				"origin": origin,
				"method": c.GetHeader("Access-Control-Request-Method"),
			})
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
