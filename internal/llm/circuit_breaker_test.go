package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockGenerator is a mock implementation of the Generator interface
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	args := m.Called(ctx, system, user, temperature)
	return args.String(0), args.Error(1)
}

// MockEmbedder is a mock implementation of the Embedder interface
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func testBreakerConfig(t *testing.T, timeout time.Duration) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    1 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			t.Logf("State changed from %s to %s", from, to)
		},
	}
}

func TestCircuitBreakerGenerator_Success(t *testing.T) {
	mockGen := new(MockGenerator)
	mockGen.On("Generate", mock.Anything, "system", "user", 0.0).Return("SELECT 1", nil)

	cb := NewCircuitBreakerGenerator(mockGen, "test-cb", DefaultCircuitBreakerConfig)

	reply, err := cb.Generate(context.Background(), "system", "user", 0.0)

	assert.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	mockGen.AssertExpectations(t)
}

func TestCircuitBreakerGenerator_OpensAfterFailures(t *testing.T) {
	mockGen := new(MockGenerator)
	mockGen.On("Generate", mock.Anything, "system", "user", 0.0).Return("", errors.New("service unavailable"))

	cb := NewCircuitBreakerGenerator(mockGen, "test-cb", testBreakerConfig(t, 100*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := cb.Generate(context.Background(), "system", "user", 0.0)
		assert.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	// Open circuit fails without reaching the generator
	_, err := cb.Generate(context.Background(), "system", "user", 0.0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	mockGen.AssertNumberOfCalls(t, "Generate", 3)
}

func TestCircuitBreakerGenerator_HalfOpenRecovery(t *testing.T) {
	mockGen := new(MockGenerator)
	mockGen.On("Generate", mock.Anything, "system", "user", 0.0).Return("", errors.New("service unavailable")).Times(3)
	mockGen.On("Generate", mock.Anything, "system", "user", 0.0).Return("SELECT 1", nil).Once()

	cb := NewCircuitBreakerGenerator(mockGen, "test-cb", testBreakerConfig(t, 50*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := cb.Generate(context.Background(), "system", "user", 0.0)
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(100 * time.Millisecond)

	reply, err := cb.Generate(context.Background(), "system", "user", 0.0)
	assert.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerGenerator_Counts(t *testing.T) {
	mockGen := new(MockGenerator)
	mockGen.On("Generate", mock.Anything, "system", "user", 0.3).Return("ok", nil)

	cb := NewCircuitBreakerGenerator(mockGen, "test-cb", DefaultCircuitBreakerConfig)

	for i := 0; i < 5; i++ {
		_, err := cb.Generate(context.Background(), "system", "user", 0.3)
		assert.NoError(t, err)
	}

	counts := cb.Counts()
	assert.Equal(t, uint32(5), counts.Requests)
	assert.Equal(t, uint32(0), counts.TotalFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
}

func TestCircuitBreakerEmbedder(t *testing.T) {
	mockEmb := new(MockEmbedder)
	expected := [][]float32{{0.1, 0.2, 0.3}}
	mockEmb.On("Embed", mock.Anything, []string{"test text"}).Return(expected, nil)

	cb := NewCircuitBreakerEmbedder(mockEmb, "test-cb", DefaultCircuitBreakerConfig)

	vectors, err := cb.Embed(context.Background(), []string{"test text"})

	assert.NoError(t, err)
	assert.Equal(t, expected, vectors)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	mockEmb.AssertExpectations(t)
}

func TestCircuitBreakerEmbedder_PropagatesError(t *testing.T) {
	mockEmb := new(MockEmbedder)
	mockEmb.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	cb := NewCircuitBreakerEmbedder(mockEmb, "test-cb", DefaultCircuitBreakerConfig)

	_, err := cb.Embed(context.Background(), []string{"q"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	mockEmb.AssertNumberOfCalls(t, "Embed", 1)
}

func TestCircuitBreakerGenerator_ClientErrorsDoNotTrip(t *testing.T) {
	mockGen := new(MockGenerator)
	rejected := &APIError{Provider: "OpenAI", StatusCode: 401, Message: "bad key"}
	mockGen.On("Generate", mock.Anything, "system", "user", 0.0).Return("", rejected)

	config := testBreakerConfig(t, time.Minute)
	config.IsSuccessful = providerHealthy
	cb := NewCircuitBreakerGenerator(mockGen, "test-cb", config)

	for i := 0; i < 5; i++ {
		_, err := cb.Generate(context.Background(), "system", "user", 0.0)
		assert.ErrorIs(t, err, rejected)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	mockGen.AssertNumberOfCalls(t, "Generate", 5)
}
