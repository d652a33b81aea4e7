package processor

import (
	"fmt"
	"sort"

	"github.com/seanankenbruck/warehouse-ai/internal/warehouse"
)

// ResultProcessor caps warehouse rows and summarizes them for logs and responses
type ResultProcessor struct {
	maxRows int
}

// NewResultProcessor creates a result processor; maxRows <= 0 disables the cap
func NewResultProcessor(maxRows int) *ResultProcessor {
	return &ResultProcessor{maxRows: maxRows}
}

// QueryResults is the capped row set of one request
type QueryResults struct {
	Rows      []warehouse.Row `json:"-"`
	RowCount  int             `json:"row_count"`
	Columns   []string        `json:"columns"`
	Truncated bool            `json:"truncated"`
	Summary   string          `json:"summary"`
}

// ProcessRows caps rows at maxRows regardless of how many the executor returned
func (rp *ResultProcessor) ProcessRows(rows []warehouse.Row) *QueryResults {
	capped := warehouse.CapRows(rows, rp.maxRows)
	if capped == nil {
		capped = []warehouse.Row{}
	}

	results := &QueryResults{
		Rows:      capped,
		RowCount:  len(capped),
		Columns:   columnNames(capped),
		Truncated: len(capped) < len(rows),
	}
	results.Summary = rp.summary(results)
	return results
}

func (rp *ResultProcessor) summary(r *QueryResults) string {
	switch {
	case r.RowCount == 0:
		return "No rows returned"
	case r.Truncated:
		return fmt.Sprintf("Showing first %d rows across %d columns (result truncated)", r.RowCount, len(r.Columns))
	case r.RowCount == 1:
		return fmt.Sprintf("1 row across %d columns", len(r.Columns))
	default:
		return fmt.Sprintf("%d rows across %d columns", r.RowCount, len(r.Columns))
	}
}

// columnNames returns the sorted union of keys across rows
func columnNames(rows []warehouse.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
