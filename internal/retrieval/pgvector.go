package retrieval

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// pgvectorIndex runs the vector leg as a SQL query against a postgres
// embeddings table with a pgvector vector(1536) column, ordering by the
// cosine-distance operator "<=>" (pgvector's vector_cosine_ops). This is the
// default VectorIndex: no extra service to run, consistent with storing
// vectors alongside the rest of the relational data (spec.md §3, §5).
type pgvectorIndex struct {
	db *gorm.DB
}

func NewPGVectorIndex(db *gorm.DB) VectorIndex {
	return &pgvectorIndex{db: db}
}

type pgvectorRow struct {
	ChunkID  string
	DocID    string
	Distance float64
}

func (p *pgvectorIndex) Search(ctx context.Context, queryVec []float32, limit int, allowedChunks map[uuid.UUID]struct{}) ([]VectorHit, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}

	literal := vectorLiteral(queryVec)
	query := p.db.WithContext(ctx).Table("embeddings").
		Select("embeddings.chunk_id AS chunk_id, chunks.doc_id AS doc_id, embeddings.vec <=> ? AS distance", literal).
		Joins("JOIN chunks ON chunks.chunk_id = embeddings.chunk_id").
		Order("distance ASC").
		Limit(limit)

	if allowedChunks != nil {
		ids := make([]string, 0, len(allowedChunks))
		for id := range allowedChunks {
			ids = append(ids, id.String())
		}
		if len(ids) == 0 {
			return nil, nil
		}
		query = query.Where("embeddings.chunk_id IN ?", ids)
	}

	var rows []pgvectorRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError("vector search query failed", err)
	}

	hits := make([]VectorHit, 0, len(rows))
	for _, r := range rows {
		chunkID, err := uuid.Parse(r.ChunkID)
		if err != nil {
			continue
		}
		docID, _ := uuid.Parse(r.DocID)
		hits = append(hits, VectorHit{ChunkID: chunkID, DocID: docID, Score: 1 - r.Distance})
	}
	return hits, nil
}

func (p *pgvectorIndex) Upsert(ctx context.Context, chunkID, docID uuid.UUID, vec []float32) error {
	if p.db.Dialector.Name() != "postgres" {
		return nil
	}
	err := p.db.WithContext(ctx).Exec(
		"UPDATE embeddings SET vec = ? WHERE chunk_id = ?", vectorLiteral(vec), chunkID,
	).Error
	if err != nil {
		return models.NewInternalError("failed to upsert embedding vector", err)
	}
	return nil
}

// vectorLiteral renders a float32 vector as a pgvector input literal.
func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
