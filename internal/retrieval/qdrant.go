package retrieval

import (
	"context"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/tas-rag-core/models"
)

// docIDPayloadField stores the owning document's UUID alongside the chunk
// vector, since Qdrant points only carry a single ID (the chunk ID here).
const docIDPayloadField = "doc_id"

// qdrantIndex is the optional ANN-backed VectorIndex, used in place of
// pgvectorIndex when a dedicated vector service is available (spec.md §9:
// exact ANN mechanics are implementation-defined). Mirrors the teacher pack's
// qdrantVector wrapper (intelligencedev-manifold), trimmed to this engine's
// chunk/doc identity model.
type qdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantVectorIndex connects to a Qdrant instance and ensures the
// collection exists with cosine-distance vectors of the given dimension.
func NewQdrantVectorIndex(ctx context.Context, host string, port int, apiKey, collection string, dim int) (VectorIndex, error) {
	cfg := &qdrant.Config{Host: host, Port: port}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, models.NewConfigError("failed to create qdrant client", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, models.NewUpstreamError("failed to check qdrant collection", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, models.NewUpstreamError("failed to create qdrant collection", err)
		}
	}

	return &qdrantIndex{client: client, collection: collection}, nil
}

func (q *qdrantIndex) Upsert(ctx context.Context, chunkID, docID uuid.UUID, vec []float32) error {
	payload := qdrant.NewValueMap(map[string]any{docIDPayloadField: docID.String()})
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(chunkID.String()),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: payload,
	}}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return models.NewUpstreamError("qdrant upsert failed", err)
	}
	return nil
}

func (q *qdrantIndex) Search(ctx context.Context, queryVec []float32, limit int, allowedChunks map[uuid.UUID]struct{}) ([]VectorHit, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}

	fetchLimit := uint64(limit)
	if allowedChunks != nil {
		// Qdrant has no "IN" filter over point IDs in this client version's
		// condition set that's worth the complexity here; over-fetch and
		// post-filter like the lexical path does.
		fetchLimit = uint64(limit * 5)
		if fetchLimit < 100 {
			fetchLimit = 100
		}
	}

	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(queryVec),
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, models.NewUpstreamError("qdrant query failed", err)
	}

	hits := make([]VectorHit, 0, len(res))
	for _, hit := range res {
		chunkID, err := uuid.Parse(hit.Id.GetUuid())
		if err != nil {
			continue
		}
		if allowedChunks != nil {
			if _, ok := allowedChunks[chunkID]; !ok {
				continue
			}
		}
		var docID uuid.UUID
		if hit.Payload != nil {
			if v, ok := hit.Payload[docIDPayloadField]; ok {
				docID, _ = uuid.Parse(v.GetStringValue())
			}
		}
		hits = append(hits, VectorHit{ChunkID: chunkID, DocID: docID, Score: float64(hit.Score)})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}
