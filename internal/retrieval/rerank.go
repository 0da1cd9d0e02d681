package retrieval

import "context"

// Reranker optionally reorders fused hits before truncation to top_k
// (spec.md §9 notes reranking as implementation-defined, not mandated). The
// default is a no-op so the fusion order stands on its own.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []Hit) ([]Hit, error)
}

type noopReranker struct{}

// NewNoopReranker returns the identity Reranker.
func NewNoopReranker() Reranker {
	return noopReranker{}
}

func (noopReranker) Rerank(_ context.Context, _ string, hits []Hit) ([]Hit, error) {
	return hits, nil
}
