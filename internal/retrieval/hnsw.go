package retrieval

import (
	"context"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
)

// hnswIndex is an in-process ANN VectorIndex, used as a no-extra-service
// alternative to qdrantIndex when nothing warrants running a separate vector
// service (spec.md §9: exact ANN mechanics are implementation-defined).
// Mirrors Aman-CERP-amanmcp's internal/store/hnsw.go: a coder/hnsw Graph
// keyed by a uint64 counter, with a chunk/doc UUID side table since the
// library's graph only stores a single generic key per node and this engine
// needs both identities back out of a hit.
type hnswIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	nextKey  uint64
	keyToID  map[uint64]uuid.UUID
	keyToDoc map[uint64]uuid.UUID
	idToKey  map[uuid.UUID]uint64
}

// NewHNSWVectorIndex builds an empty in-memory ANN index. Chunks are added
// via Upsert as they're embedded; there is no persistence across restarts,
// so this is meant for small/ephemeral deployments or tests rather than the
// production pgvector/Qdrant paths.
func NewHNSWVectorIndex() VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25
	return &hnswIndex{
		graph:    graph,
		keyToID:  make(map[uint64]uuid.UUID),
		keyToDoc: make(map[uint64]uuid.UUID),
		idToKey:  make(map[uuid.UUID]uint64),
	}
}

func (h *hnswIndex) Upsert(ctx context.Context, chunkID, docID uuid.UUID, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Lazy-delete-then-add on re-upsert: coder/hnsw has no stable update-in-
	// place operation, and the example donor deliberately avoids Delete() on
	// the last remaining node, so old mappings are simply orphaned instead.
	if oldKey, exists := h.idToKey[chunkID]; exists {
		delete(h.keyToID, oldKey)
		delete(h.keyToDoc, oldKey)
	}

	key := h.nextKey
	h.nextKey++
	h.graph.Add(hnsw.MakeNode(key, vec))
	h.idToKey[chunkID] = key
	h.keyToID[key] = chunkID
	h.keyToDoc[key] = docID
	return nil
}

func (h *hnswIndex) Search(ctx context.Context, queryVec []float32, limit int, allowedChunks map[uuid.UUID]struct{}) ([]VectorHit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		return nil, nil
	}

	// Over-fetch when a taxonomy-scope filter is active, since the graph has
	// no concept of that filter and post-filtering shrinks the result set.
	k := limit
	if allowedChunks != nil {
		k = limit * 4
	}

	nodes := h.graph.Search(queryVec, k)
	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		chunkID, ok := h.keyToID[node.Key]
		if !ok {
			continue
		}
		if allowedChunks != nil {
			if _, allowed := allowedChunks[chunkID]; !allowed {
				continue
			}
		}
		distance := h.graph.Distance(queryVec, node.Value)
		hits = append(hits, VectorHit{ChunkID: chunkID, DocID: h.keyToDoc[node.Key], Score: 1 - distance})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}
