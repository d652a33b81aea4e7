package warehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, query string) ([]Row, error) {
	args := m.Called(ctx, query)
	if rows := args.Get(0); rows != nil {
		return rows.([]Row), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockExecutor) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestCircuitBreakerExecutor_PassThrough(t *testing.T) {
	inner := new(MockExecutor)
	inner.On("Execute", mock.Anything, "SELECT 1 LIMIT 1").Return([]Row{{"x": 1}}, nil)

	cb := NewCircuitBreakerExecutor(inner, "test", DefaultCircuitBreakerConfig)
	rows, err := cb.Execute(context.Background(), "SELECT 1 LIMIT 1")

	require.NoError(t, err)
	assert.Equal(t, []Row{{"x": 1}}, rows)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	inner.AssertExpectations(t)
}

func TestCircuitBreakerExecutor_Opens(t *testing.T) {
	inner := new(MockExecutor)
	inner.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("warehouse down"))

	config := DefaultCircuitBreakerConfig
	config.OnStateChange = nil
	cb := NewCircuitBreakerExecutor(inner, "test", config)

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), "SELECT 1")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	inner.AssertNumberOfCalls(t, "Execute", 3)
}

func TestCircuitBreakerExecutor_PingBypassesBreaker(t *testing.T) {
	inner := new(MockExecutor)
	inner.On("Ping", mock.Anything).Return(nil)

	cb := NewCircuitBreakerExecutor(inner, "test", DefaultCircuitBreakerConfig)
	assert.NoError(t, cb.Ping(context.Background()))
}

func TestCircuitBreakerExecutor_StatementErrorsDoNotTrip(t *testing.T) {
	inner := new(MockExecutor)
	badColumn := &StatementError{Err: errors.New("no such column: regio")}
	inner.On("Execute", mock.Anything, mock.Anything).Return(nil, badColumn)

	config := DefaultCircuitBreakerConfig
	config.OnStateChange = nil
	cb := NewCircuitBreakerExecutor(inner, "test", config)

	for i := 0; i < 6; i++ {
		_, err := cb.Execute(context.Background(), "SELECT regio FROM orders")
		var stmtErr *StatementError
		require.ErrorAs(t, err, &stmtErr)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	inner.AssertNumberOfCalls(t, "Execute", 6)
}
