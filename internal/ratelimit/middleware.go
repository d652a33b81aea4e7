package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/warehouse-ai/internal/errors"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// Middleware applies a per client IP limit to the routes it wraps
type Middleware struct {
	limiter        *RateLimiter
	limitPerMinute int
}

// NewMiddleware allows limitPerMinute requests per client; zero disables the limit
func NewMiddleware(limiter *RateLimiter, limitPerMinute int) *Middleware {
	return &Middleware{limiter: limiter, limitPerMinute: limitPerMinute}
}

// Middleware returns the gin handler. Rejections carry Retry-After in whole seconds.
func (m *Middleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := m.limiter.Reserve(c.ClientIP(), m.limitPerMinute)
		if ok {
			c.Next()
			return
		}

		observability.GetGlobalMetrics().Inc(observability.MetricRateLimited, map[string]string{
			"route": c.FullPath(),
		})

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		err := errors.NewRateLimitedError(m.limitPerMinute)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":       err.Code,
				"message":    err.Message,
				"suggestion": err.Suggestion,
			},
		})
	}
}
