package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/seanankenbruck/warehouse-ai/internal/catalog"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// Index is the embedded catalog. It is built once and never mutated, so any number of
// requests may read it concurrently without locking.
type Index struct {
	objects    []CatalogObject
	dimensions int
}

// BuildIndex embeds every catalog object with a single Embed call and assigns the vectors
// back by position. An empty catalog gives an empty index and no embedding call.
func BuildIndex(ctx context.Context, cat *catalog.Catalog, embedder llm.Embedder) (*Index, error) {
	logger := observability.NewLogger("semantic")
	start := time.Now()

	objects := ObjectsFromCatalog(cat)
	if len(objects) == 0 {
		logger.Warn(ctx, "Catalog is empty, every question will get a no-data answer", nil)
		return &Index{}, nil
	}

	fragments := make([]string, len(objects))
	for i, obj := range objects {
		fragments[i] = obj.Fragment
	}

	vectors, err := embedder.Embed(ctx, fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to embed catalog: %w", err)
	}
	if len(vectors) != len(objects) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d catalog objects", len(vectors), len(objects))
	}

	dimensions := len(vectors[0])
	if dimensions == 0 {
		return nil, fmt.Errorf("embedding provider returned an empty vector")
	}
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("embedding for %s has %d dimensions, expected %d", objects[i].QualifiedName(), len(v), dimensions)
		}
		objects[i].Embedding = v
	}

	duration := time.Since(start)
	metrics := observability.GetGlobalMetrics()
	metrics.Set(observability.MetricIndexObjects, float64(len(objects)), nil)
	metrics.Observe(observability.MetricIndexBuildDur, duration.Seconds(), nil)

	logger.Info(ctx, "Catalog index built", map[string]interface{}{
		"objects":     len(objects),
		"dimensions":  dimensions,
		"duration_ms": duration.Milliseconds(),
	})

	return &Index{objects: objects, dimensions: dimensions}, nil
}

// NewIndex wraps objects that already carry embeddings, e.g. ones read back from a snapshot.
func NewIndex(objects []CatalogObject) (*Index, error) {
	idx := &Index{objects: make([]CatalogObject, len(objects))}
	copy(idx.objects, objects)
	for _, obj := range idx.objects {
		if idx.dimensions == 0 {
			idx.dimensions = len(obj.Embedding)
		}
		if len(obj.Embedding) == 0 || len(obj.Embedding) != idx.dimensions {
			return nil, fmt.Errorf("object %s has an invalid embedding", obj.QualifiedName())
		}
	}
	return idx, nil
}

// Len returns the number of indexed objects
func (idx *Index) Len() int {
	return len(idx.objects)
}

// Dimensions returns the embedding length, or 0 for an empty index
func (idx *Index) Dimensions() int {
	return idx.dimensions
}

// Objects returns a copy of the indexed objects. Embedding slices are shared and must not
// be modified.
func (idx *Index) Objects() []CatalogObject {
	out := make([]CatalogObject, len(idx.objects))
	copy(out, idx.objects)
	return out
}

// ScoredObject pairs an object with its similarity to a query vector
type ScoredObject struct {
	Object CatalogObject
	Score  float64
}

// Score computes the similarity of query to every object, in index order
func (idx *Index) Score(query []float32) []ScoredObject {
	scored := make([]ScoredObject, len(idx.objects))
	for i, obj := range idx.objects {
		scored[i] = ScoredObject{Object: obj, Score: Cosine(query, obj.Embedding)}
	}
	return scored
}
