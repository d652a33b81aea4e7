package semantic

import (
	"context"
)

// SnapshotStore persists the built index so operators can inspect it and run nearest
// neighbour searches outside the request path.
type SnapshotStore interface {
	// SaveSnapshot replaces the stored objects with the given ones
	SaveSnapshot(ctx context.Context, objects []CatalogObject) error
	// NearestObjects returns the stored objects closest to embedding, best first
	NearestObjects(ctx context.Context, embedding []float32, limit int) ([]SnapshotMatch, error)
	// LoadSnapshot reads every stored object back with its embedding
	LoadSnapshot(ctx context.Context) ([]CatalogObject, error)
	Ping(ctx context.Context) error
	Close() error
}

// SnapshotMatch is a stored object with its cosine similarity to the search vector
type SnapshotMatch struct {
	ID         string        `json:"id"`
	Object     CatalogObject `json:"object"`
	Similarity float64       `json:"similarity"`
	CreatedAt  string        `json:"created_at"`
}
