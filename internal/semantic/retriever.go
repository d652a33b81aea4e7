package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/seanankenbruck/warehouse-ai/internal/errors"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// ColumnHit is a column that matched the question
type ColumnHit struct {
	Name     string  `json:"name"`
	Fragment string  `json:"text"`
	Score    float64 `json:"score"`
}

// TableHit groups the column hits of one table. TableScore is 1.0 when the table object
// itself appeared among the ranked objects and 0 otherwise.
type TableHit struct {
	Dataset    string      `json:"dataset"`
	Table      string      `json:"table"`
	TableScore float64     `json:"table_score"`
	Columns    []ColumnHit `json:"columns"`
}

// QualifiedName renders dataset.table
func (t TableHit) QualifiedName() string {
	return t.Dataset + "." + t.Table
}

// ColumnList joins the hit column names, or returns "*" when no column matched
func (t TableHit) ColumnList() string {
	if len(t.Columns) == 0 {
		return "*"
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// Signature renders dataset.table(col1, col2) as shown to the models
func (t TableHit) Signature() string {
	return fmt.Sprintf("%s(%s)", t.QualifiedName(), t.ColumnList())
}

// RetrievalResult is the ranked schema slice selected for one question
type RetrievalResult struct {
	Tables []TableHit `json:"tables"`
}

// IsEmpty reports whether no relevant schema was found
func (r *RetrievalResult) IsEmpty() bool {
	return r == nil || len(r.Tables) == 0
}

// Sources lists dataset.table for every retrieved table, in rank order
func (r *RetrievalResult) Sources() []string {
	sources := []string{}
	if r == nil {
		return sources
	}
	for _, t := range r.Tables {
		sources = append(sources, t.QualifiedName())
	}
	return sources
}

// Defaults applied when the configuration leaves a limit unset
const (
	DefaultTopK            = 5
	DefaultColumnsPerTable = 6
)

// Retriever ranks catalog objects against a question
type Retriever struct {
	index           *Index
	embedder        llm.Embedder
	topK            int
	columnsPerTable int
	logger          *observability.Logger
}

// NewRetriever creates a retriever over a built index. topK and columnsPerTable are the
// defaults used when a caller does not ask for a specific table count.
func NewRetriever(index *Index, embedder llm.Embedder, topK, columnsPerTable int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if columnsPerTable <= 0 {
		columnsPerTable = DefaultColumnsPerTable
	}
	return &Retriever{
		index:           index,
		embedder:        embedder,
		topK:            topK,
		columnsPerTable: columnsPerTable,
		logger:          observability.NewLogger("retriever"),
	}
}

// Index returns the index this retriever reads
func (r *Retriever) Index() *Index {
	return r.index
}

// Retrieve embeds the question once and returns at most topK tables. topK <= 0 uses the
// configured default. An empty index returns an empty result without embedding.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (*RetrievalResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if r.index.Len() == 0 {
		return &RetrievalResult{Tables: []TableHit{}}, nil
	}

	start := time.Now()
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, apperrors.NewEmbeddingGenerationError(err)
	}
	if len(vectors) != 1 || len(vectors[0]) != r.index.Dimensions() {
		return nil, apperrors.NewEmbeddingGenerationError(
			fmt.Errorf("question embedding does not match the index dimensions (%d)", r.index.Dimensions()))
	}

	result := Rank(r.index.Score(vectors[0]), topK, r.columnsPerTable)

	duration := time.Since(start)
	metrics := observability.GetGlobalMetrics()
	metrics.Observe(observability.MetricRetrievalDuration, duration.Seconds(), nil)
	metrics.Observe(observability.MetricRetrievedTables, float64(len(result.Tables)), nil)

	r.logger.Debug(ctx, "Schema objects retrieved", map[string]interface{}{
		"tables":      result.Sources(),
		"duration_ms": duration.Milliseconds(),
	})
	return result, nil
}

// Rank turns per-object scores into table hits:
//  1. objects are sorted by score, descending, keeping index order among equal scores
//  2. objects are folded per (dataset, table) in that order; a table object sets the
//     table score to 1.0, a column object appends a column hit
//  3. tables are ranked by column hit count, then table score, both descending
//  4. the first topK tables survive, each keeping its first columnsPerTable columns
func Rank(scored []ScoredObject, topK, columnsPerTable int) *RetrievalResult {
	sorted := make([]ScoredObject, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	type tableKey struct{ dataset, table string }
	groups := make(map[tableKey]*TableHit)
	var order []*TableHit

	for _, s := range sorted {
		key := tableKey{s.Object.Dataset, s.Object.Table}
		hit, ok := groups[key]
		if !ok {
			hit = &TableHit{Dataset: key.dataset, Table: key.table, Columns: []ColumnHit{}}
			groups[key] = hit
			order = append(order, hit)
		}
		if s.Object.Kind == KindTable {
			if hit.TableScore < 1.0 {
				hit.TableScore = 1.0
			}
			continue
		}
		hit.Columns = append(hit.Columns, ColumnHit{
			Name:     s.Object.Column,
			Fragment: s.Object.Fragment,
			Score:    s.Score,
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		if len(order[i].Columns) != len(order[j].Columns) {
			return len(order[i].Columns) > len(order[j].Columns)
		}
		return order[i].TableScore > order[j].TableScore
	})

	if topK < 0 {
		topK = 0
	}
	if len(order) > topK {
		order = order[:topK]
	}

	result := &RetrievalResult{Tables: make([]TableHit, 0, len(order))}
	for _, hit := range order {
		if columnsPerTable >= 0 && len(hit.Columns) > columnsPerTable {
			hit.Columns = hit.Columns[:columnsPerTable]
		}
		result.Tables = append(result.Tables, *hit)
	}
	return result
}
