package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// CircuitBreakerConfig tunes the breaker in front of the warehouse
type CircuitBreakerConfig struct {
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	ReadyToTrip   func(counts gobreaker.Counts) bool
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

var breakerLogger = observability.NewLogger("warehouse")

// warehouseAnswered counts a rejected statement as a healthy round trip. Only connection
// failures and timeouts move the breaker towards open.
func warehouseAnswered(err error) bool {
	var stmtErr *StatementError
	return err == nil || errors.As(err, &stmtErr)
}

// DefaultCircuitBreakerConfig opens after repeated outages and probes again after 30s
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    10 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		return counts.Requests >= 3 &&
			(counts.ConsecutiveFailures >= 5 || counts.TotalFailures*5 >= counts.Requests*3)
	},
	IsSuccessful: warehouseAnswered,
	OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
		breakerLogger.Warn(context.Background(), "Warehouse circuit changed state", map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
	},
}

// CircuitBreakerExecutor fails fast while the warehouse is unreachable
type CircuitBreakerExecutor struct {
	executor Executor
	breaker  *gobreaker.CircuitBreaker
}

func NewCircuitBreakerExecutor(executor Executor, name string, config CircuitBreakerConfig) *CircuitBreakerExecutor {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   config.ReadyToTrip,
		IsSuccessful:  config.IsSuccessful,
		OnStateChange: config.OnStateChange,
	})
	return &CircuitBreakerExecutor{executor: executor, breaker: breaker}
}

func (cb *CircuitBreakerExecutor) Execute(ctx context.Context, query string) ([]Row, error) {
	rows, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.executor.Execute(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cb.breaker.Name(), err)
	}
	return rows.([]Row), nil
}

// Ping bypasses the breaker so health checks always reach the warehouse
func (cb *CircuitBreakerExecutor) Ping(ctx context.Context) error {
	return cb.executor.Ping(ctx)
}

func (cb *CircuitBreakerExecutor) State() gobreaker.State {
	return cb.breaker.State()
}
