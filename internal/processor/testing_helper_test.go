package processor

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/seanankenbruck/warehouse-ai/internal/semantic"
	"github.com/seanankenbruck/warehouse-ai/internal/warehouse"
)

type generateCall struct {
	System      string
	User        string
	Temperature float64
}

// scriptedGenerator answers SQL prompts and answer prompts from fixed replies
type scriptedGenerator struct {
	mu          sync.Mutex
	sqlReply    string
	sqlErr      error
	answerReply string
	answerErr   error
	calls       []generateCall
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{System: system, User: user, Temperature: temperature})
	g.mu.Unlock()

	if strings.HasPrefix(system, "You write one safe SELECT") {
		return g.sqlReply, g.sqlErr
	}
	return g.answerReply, g.answerErr
}

func (g *scriptedGenerator) Calls() []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generateCall(nil), g.calls...)
}

type staticRetriever struct {
	result *semantic.RetrievalResult
	err    error
	topKs  []int
}

func (r *staticRetriever) Retrieve(ctx context.Context, question string, topK int) (*semantic.RetrievalResult, error) {
	r.topKs = append(r.topKs, topK)
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, query string) ([]warehouse.Row, error) {
	args := m.Called(ctx, query)
	if rows := args.Get(0); rows != nil {
		return rows.([]warehouse.Row), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockExecutor) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func ordersRetrieval() *semantic.RetrievalResult {
	return &semantic.RetrievalResult{Tables: []semantic.TableHit{
		{
			Dataset:    "sales",
			Table:      "orders",
			TableScore: 1.0,
			Columns: []semantic.ColumnHit{
				{Name: "amount", Fragment: "sales.orders.amount: order value", Score: 0.9},
				{Name: "created_at", Fragment: "sales.orders.created_at: order date", Score: 0.7},
			},
		},
		{Dataset: "sales", Table: "customers", TableScore: 1.0},
	}}
}

func makeRows(n int) []warehouse.Row {
	rows := make([]warehouse.Row, n)
	for i := range rows {
		rows[i] = warehouse.Row{"id": i + 1, "amount": float64(i) * 10}
	}
	return rows
}
