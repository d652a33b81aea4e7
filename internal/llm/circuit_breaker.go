package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// CircuitBreakerConfig tunes the breaker placed in front of a provider
type CircuitBreakerConfig struct {
	MaxRequests uint32        // probes let through while half-open
	Interval    time.Duration // closed-state window after which counts reset
	Timeout     time.Duration // how long the breaker stays open
	ReadyToTrip func(counts gobreaker.Counts) bool
	// IsSuccessful decides which errors leave the breaker's failure count alone
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

var breakerLogger = observability.NewLogger("circuit-breaker")

// providerHealthy treats caller mistakes as successes: a rejected key or a cancelled
// request says nothing about whether the provider is up.
func providerHealthy(err error) bool {
	return err == nil || IsClientError(err) || errors.Is(err, context.Canceled)
}

// DefaultCircuitBreakerConfig trips after five straight failures, or 60% of at least three
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    10 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		if counts.Requests < 3 {
			return false
		}
		ratio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.ConsecutiveFailures >= 5 || ratio >= 0.6
	},
	IsSuccessful: providerHealthy,
	OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
		breakerLogger.Warn(context.Background(), "Provider circuit changed state", map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
	},
}

func newBreaker(name string, config CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   config.ReadyToTrip,
		IsSuccessful:  config.IsSuccessful,
		OnStateChange: config.OnStateChange,
	})
}

// guarded runs call through breaker. An open circuit fails fast and nothing is retried.
func guarded[T any](breaker *gobreaker.CircuitBreaker, call func() (T, error)) (T, error) {
	out, err := breaker.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", breaker.Name(), err)
	}
	return out.(T), nil
}

// CircuitBreakerEmbedder puts a breaker in front of an Embedder
type CircuitBreakerEmbedder struct {
	embedder Embedder
	breaker  *gobreaker.CircuitBreaker
}

// NewCircuitBreakerEmbedder wraps embedder in a breaker called name
func NewCircuitBreakerEmbedder(embedder Embedder, name string, config CircuitBreakerConfig) *CircuitBreakerEmbedder {
	return &CircuitBreakerEmbedder{embedder: embedder, breaker: newBreaker(name, config)}
}

func (cb *CircuitBreakerEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return guarded(cb.breaker, func() ([][]float32, error) {
		return cb.embedder.Embed(ctx, texts)
	})
}

func (cb *CircuitBreakerEmbedder) State() gobreaker.State {
	return cb.breaker.State()
}

// CircuitBreakerGenerator puts a breaker in front of a Generator
type CircuitBreakerGenerator struct {
	generator Generator
	breaker   *gobreaker.CircuitBreaker
}

// NewCircuitBreakerGenerator wraps generator in a breaker called name
func NewCircuitBreakerGenerator(generator Generator, name string, config CircuitBreakerConfig) *CircuitBreakerGenerator {
	return &CircuitBreakerGenerator{generator: generator, breaker: newBreaker(name, config)}
}

func (cb *CircuitBreakerGenerator) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	return guarded(cb.breaker, func() (string, error) {
		return cb.generator.Generate(ctx, system, user, temperature)
	})
}

func (cb *CircuitBreakerGenerator) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreakerGenerator) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}
