package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/seanankenbruck/warehouse-ai/internal/catalog"
	apperrors "github.com/seanankenbruck/warehouse-ai/internal/errors"
)

func table(ds, tb string, score float64) ScoredObject {
	return ScoredObject{Object: CatalogObject{Kind: KindTable, Dataset: ds, Table: tb, Fragment: ds + "." + tb + ":"}, Score: score}
}

func column(ds, tb, col string, score float64) ScoredObject {
	return ScoredObject{
		Object: CatalogObject{Kind: KindColumn, Dataset: ds, Table: tb, Column: col, Fragment: ds + "." + tb + "." + col + ":"},
		Score:  score,
	}
}

func names(result *RetrievalResult) []string {
	out := []string{}
	for _, t := range result.Tables {
		out = append(out, t.Signature())
	}
	return out
}

func TestRank_ColumnHitsOutrankTableScore(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var scored []ScoredObject
			// "wide" has N column hits and no table object, so table_score stays 0
			for i := 0; i < n; i++ {
				scored = append(scored, column("d", "wide", fmt.Sprintf("c%d", i), 0.1))
			}
			// "named" matched by its table description with a much higher score, plus N-1 columns
			scored = append(scored, table("d", "named", 0.99))
			for i := 0; i < n-1; i++ {
				scored = append(scored, column("d", "named", fmt.Sprintf("c%d", i), 0.9))
			}

			result := Rank(scored, 5, 10)
			require.Len(t, result.Tables, 2)
			assert.Equal(t, "wide", result.Tables[0].Table)
			assert.Equal(t, 0.0, result.Tables[0].TableScore)
			assert.Equal(t, "named", result.Tables[1].Table)
			assert.Equal(t, 1.0, result.Tables[1].TableScore)
		})
	}
}

func TestRank_TableScoreBreaksTies(t *testing.T) {
	scored := []ScoredObject{
		column("d", "plain", "a", 0.9),
		column("d", "described", "b", 0.8),
		table("d", "described", 0.05),
	}

	result := Rank(scored, 5, 10)
	assert.Equal(t, []string{"d.described(b)", "d.plain(a)"}, names(result))
}

func TestRank_TableHitSaturatesScore(t *testing.T) {
	result := Rank([]ScoredObject{table("d", "t", 0.42)}, 5, 10)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, 1.0, result.Tables[0].TableScore)
	assert.Empty(t, result.Tables[0].Columns)
	assert.Equal(t, "d.t(*)", result.Tables[0].Signature())
}

func TestRank_ColumnsFollowSimilarityOrder(t *testing.T) {
	scored := []ScoredObject{
		table("d", "t", 0.5),
		column("d", "t", "low", 0.1),
		column("d", "t", "high", 0.9),
		column("d", "t", "mid", 0.5),
	}

	result := Rank(scored, 5, 10)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "high, mid, low", result.Tables[0].ColumnList())
	assert.Equal(t, 0.9, result.Tables[0].Columns[0].Score)
}

func TestRank_EqualScoresKeepIndexOrder(t *testing.T) {
	scored := []ScoredObject{
		column("d", "first", "a", 0.5),
		column("d", "second", "b", 0.5),
		column("d", "third", "c", 0.5),
	}

	result := Rank(scored, 5, 10)
	assert.Equal(t, []string{"d.first(a)", "d.second(b)", "d.third(c)"}, names(result))
}

func TestRank_Truncation(t *testing.T) {
	var scored []ScoredObject
	for i := 0; i < 4; i++ {
		tb := fmt.Sprintf("t%d", i)
		scored = append(scored, table("d", tb, 0.1))
		for c := 0; c <= i; c++ {
			scored = append(scored, column("d", tb, fmt.Sprintf("c%d", c), float64(10-c)/10))
		}
	}

	result := Rank(scored, 2, 2)
	require.Len(t, result.Tables, 2)
	assert.Equal(t, "t3", result.Tables[0].Table)
	assert.Equal(t, "t2", result.Tables[1].Table)
	for _, hit := range result.Tables {
		assert.Len(t, hit.Columns, 2)
		assert.Equal(t, "c0, c1", hit.ColumnList())
	}

	assert.Empty(t, Rank(scored, 0, 2).Tables)
}

func TestRank_SameTableNameInDifferentDatasets(t *testing.T) {
	result := Rank([]ScoredObject{column("a", "t", "x", 0.9), column("b", "t", "y", 0.8)}, 5, 5)
	assert.Equal(t, []string{"a.t(x)", "b.t(y)"}, names(result))
	assert.Equal(t, []string{"a.t", "b.t"}, result.Sources())
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	scored := []ScoredObject{column("d", "t", "a", 0.1), column("d", "t", "b", 0.9)}
	_ = Rank(scored, 5, 5)
	assert.Equal(t, "a", scored[0].Object.Column)
}

func TestRetriever_EmptyIndex(t *testing.T) {
	embedder := newCountingEmbedder()
	idx, err := BuildIndex(context.Background(), &catalog.Catalog{}, embedder)
	require.NoError(t, err)

	retriever := NewRetriever(idx, embedder, 5, 6)
	result, err := retriever.Retrieve(context.Background(), "what was revenue last month?", 0)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, []string{}, result.Sources())
	assert.Equal(t, 0, embedder.Calls())
}

func TestRetriever_Deterministic(t *testing.T) {
	embedder := newCountingEmbedder()
	idx, err := BuildIndex(context.Background(), testCatalog(), embedder)
	require.NoError(t, err)

	retriever := NewRetriever(idx, embedder, 5, 6)

	first, err := retriever.Retrieve(context.Background(), "total order revenue by customer region", 0)
	require.NoError(t, err)
	second, err := retriever.Retrieve(context.Background(), "total order revenue by customer region", 0)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("retrieval is not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, 3, embedder.Calls(), "one batch for the index, one call per question")
	assert.Len(t, embedder.inputs[1], 1)
	assert.Len(t, first.Tables, 3)
}

func TestRetriever_TopKOverride(t *testing.T) {
	embedder := newCountingEmbedder()
	idx, err := BuildIndex(context.Background(), testCatalog(), embedder)
	require.NoError(t, err)

	retriever := NewRetriever(idx, embedder, 5, 1)
	result, err := retriever.Retrieve(context.Background(), "orders", 1)
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.LessOrEqual(t, len(result.Tables[0].Columns), 1)
}

func TestRetriever_EmbeddingFailures(t *testing.T) {
	idx, err := BuildIndex(context.Background(), testCatalog(), newCountingEmbedder())
	require.NoError(t, err)

	tests := []struct {
		name     string
		embedder *countingEmbedder
	}{
		{name: "provider error", embedder: &countingEmbedder{err: errors.New("timeout")}},
		{name: "wrong dimensions", embedder: &countingEmbedder{override: func(texts []string) [][]float32 {
			return [][]float32{{1, 2, 3}}
		}}},
		{name: "no vector", embedder: &countingEmbedder{override: func(texts []string) [][]float32 {
			return [][]float32{}
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := NewRetriever(idx, tt.embedder, 5, 6)
			_, err := retriever.Retrieve(context.Background(), "revenue", 0)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeEmbeddingGeneration, apperrors.CodeOf(err))
			assert.Equal(t, 1, tt.embedder.Calls(), "failures are not retried")
		})
	}
}

func TestRetriever_ConcurrentReaders(t *testing.T) {
	defer goleak.VerifyNone(t)

	embedder := newCountingEmbedder()
	idx, err := BuildIndex(context.Background(), testCatalog(), embedder)
	require.NoError(t, err)
	retriever := NewRetriever(idx, embedder, 5, 6)

	want, err := retriever.Retrieve(context.Background(), "employee roster", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*RetrievalResult, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = retriever.Retrieve(context.Background(), "employee roster", 0)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Empty(t, cmp.Diff(want, results[i]))
	}
}
