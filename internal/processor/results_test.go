package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seanankenbruck/warehouse-ai/internal/warehouse"
)

func TestResultProcessor_ProcessRows(t *testing.T) {
	tests := []struct {
		name          string
		maxRows       int
		rows          []warehouse.Row
		wantCount     int
		wantTruncated bool
		wantSummary   string
	}{
		{name: "nil rows", maxRows: 10, rows: nil, wantCount: 0, wantSummary: "No rows returned"},
		{name: "single row", maxRows: 10, rows: makeRows(1), wantCount: 1, wantSummary: "1 row across 2 columns"},
		{name: "under cap", maxRows: 10, rows: makeRows(4), wantCount: 4, wantSummary: "4 rows across 2 columns"},
		{name: "over cap", maxRows: 10, rows: makeRows(25), wantCount: 10, wantTruncated: true,
			wantSummary: "Showing first 10 rows across 2 columns (result truncated)"},
		{name: "cap disabled", maxRows: 0, rows: makeRows(25), wantCount: 25, wantSummary: "25 rows across 2 columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := NewResultProcessor(tt.maxRows).ProcessRows(tt.rows)

			assert.Equal(t, tt.wantCount, results.RowCount)
			assert.Len(t, results.Rows, tt.wantCount)
			assert.NotNil(t, results.Rows)
			assert.Equal(t, tt.wantTruncated, results.Truncated)
			assert.Equal(t, tt.wantSummary, results.Summary)
		})
	}
}

func TestResultProcessor_Columns(t *testing.T) {
	rows := []warehouse.Row{{"b": 1, "a": 2}, {"c": 3}}
	results := NewResultProcessor(10).ProcessRows(rows)
	assert.Equal(t, []string{"a", "b", "c"}, results.Columns)
}
