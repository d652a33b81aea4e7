package semantic

import (
	"context"
	"sync"

	"github.com/seanankenbruck/warehouse-ai/internal/catalog"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
)

// countingEmbedder delegates to another embedder and counts calls
type countingEmbedder struct {
	mu       sync.Mutex
	calls    int
	inputs   [][]string
	delegate llm.Embedder
	err      error
	override func(texts []string) [][]float32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.inputs = append(c.inputs, texts)
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if c.override != nil {
		return c.override(texts), nil
	}
	return c.delegate.Embed(ctx, texts)
}

func (c *countingEmbedder) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{delegate: llm.NewLocalEmbedder(128)}
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{Datasets: []catalog.Dataset{
		{
			Name: "sales",
			Tables: []catalog.Table{
				{
					Name:        "orders",
					Description: "Customer orders with amounts and dates",
					Columns: []catalog.Column{
						{Name: "order_id", Description: "Order identifier"},
						{Name: "order_date", Description: "Date the order was placed"},
						{Name: "total_amount", Description: "Total order revenue"},
					},
				},
				{
					Name:        "customers",
					Description: "Customer master data",
					Columns: []catalog.Column{
						{Name: "customer_id", Description: "Customer identifier"},
						{Name: "region", Description: "Sales region of the customer"},
					},
				},
			},
		},
		{
			Name: "hr",
			Tables: []catalog.Table{
				{Name: "employees", Description: "Employee roster"},
			},
		},
	}}
}
