package retrieval

import (
	"context"

	"github.com/google/uuid"
)

// VectorHit is one ANN/cosine match, keyed by chunk.
type VectorHit struct {
	ChunkID uuid.UUID
	DocID   uuid.UUID
	Score   float64 // cosine similarity in [-1, 1]
}

// VectorIndex is the C2 contract for the vector-similarity leg of the hybrid
// search (spec.md §4.2). pgvector.go backs it with a SQL cosine query;
// qdrant.go backs it with an optional external ANN service.
type VectorIndex interface {
	Search(ctx context.Context, queryVec []float32, limit int, allowedChunks map[uuid.UUID]struct{}) ([]VectorHit, error)
	Upsert(ctx context.Context, chunkID, docID uuid.UUID, vec []float32) error
}
