package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// vectorLiteral renders a float32 vector as a pgvector input literal, e.g.
// "[0.1,0.2,0.3]". gorm doesn't model the vector(1536) column (it has no
// native Go type for it), so writes to it go through raw SQL.
func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ChunkDAO owns Document, Chunk and Embedding persistence. Documents are
// write-once: the core never mutates or deletes them (spec.md §3).
type ChunkDAO struct {
	db *gorm.DB
}

func NewChunkDAO(s *Store) *ChunkDAO {
	return &ChunkDAO{db: s.db}
}

func (d *ChunkDAO) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := d.db.WithContext(ctx).Create(doc).Error; err != nil {
		return models.NewDataIntegrityError("failed to create document", err)
	}
	return nil
}

func (d *ChunkDAO) CreateChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := d.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		return models.NewDataIntegrityError("failed to create chunks", err)
	}
	return nil
}

// UpsertEmbedding enforces "at most one embedding per chunk" via UPSERT on
// chunk_id (spec.md §3).
func (d *ChunkDAO) UpsertEmbedding(ctx context.Context, emb *models.Embedding) error {
	var existing models.Embedding
	err := d.db.WithContext(ctx).Where("chunk_id = ?", emb.ChunkID).First(&existing).Error
	if err == nil {
		res := d.db.WithContext(ctx).Model(&models.Embedding{}).Where("chunk_id = ?", emb.ChunkID).
			Updates(map[string]any{"model_name": emb.ModelName})
		if res.Error != nil {
			return models.NewInternalError("failed to update embedding", res.Error)
		}
		return d.setVector(ctx, emb.ChunkID, emb.Vec)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewInternalError("failed to check embedding existence", err)
	}
	if err := d.db.WithContext(ctx).Create(emb).Error; err != nil {
		return models.NewDataIntegrityError("failed to create embedding", err)
	}
	return d.setVector(ctx, emb.ChunkID, emb.Vec)
}

// setVector writes the vector(1536) column via raw SQL, since the pgvector
// type has no native gorm mapping. On the sqlite driver used in tests this
// column doesn't exist; callers that need Vec back (pgvector.go's SQL cosine
// search) only run against a real postgres+pgvector database.
func (d *ChunkDAO) setVector(ctx context.Context, chunkID uuid.UUID, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	if d.db.Dialector.Name() != "postgres" {
		return nil
	}
	err := d.db.WithContext(ctx).Exec(
		"UPDATE embeddings SET vec = ? WHERE chunk_id = ?", vectorLiteral(vec), chunkID,
	).Error
	if err != nil {
		return models.NewInternalError("failed to persist embedding vector", err)
	}
	return nil
}

func (d *ChunkDAO) ChunkByID(ctx context.Context, chunkID uuid.UUID) (*models.Chunk, error) {
	var chunk models.Chunk
	err := d.db.WithContext(ctx).Where("chunk_id = ?", chunkID).First(&chunk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewValidationError("chunk not found")
	}
	if err != nil {
		return nil, models.NewInternalError("failed to load chunk", err)
	}
	return &chunk, nil
}

func (d *ChunkDAO) AllChunks(ctx context.Context) ([]models.Chunk, error) {
	var chunks []models.Chunk
	if err := d.db.WithContext(ctx).Find(&chunks).Error; err != nil {
		return nil, models.NewInternalError("failed to load chunks", err)
	}
	return chunks, nil
}

// ChunksByIDs batch-loads chunks (for text hydration on a hit list), mirroring
// EmbeddingsForChunks's id-set-to-map shape.
func (d *ChunkDAO) ChunksByIDs(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID]models.Chunk, error) {
	out := make(map[uuid.UUID]models.Chunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var chunks []models.Chunk
	if err := d.db.WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&chunks).Error; err != nil {
		return nil, models.NewInternalError("failed to load chunks by id", err)
	}
	for _, c := range chunks {
		out[c.ChunkID] = c
	}
	return out, nil
}

func (d *ChunkDAO) EmbeddingsForChunks(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID]models.Embedding, error) {
	var embeddings []models.Embedding
	q := d.db.WithContext(ctx)
	if len(chunkIDs) > 0 {
		q = q.Where("chunk_id IN ?", chunkIDs)
	}
	if err := q.Find(&embeddings).Error; err != nil {
		return nil, models.NewInternalError("failed to load embeddings", err)
	}
	out := make(map[uuid.UUID]models.Embedding, len(embeddings))
	for _, e := range embeddings {
		out[e.ChunkID] = e
	}
	return out, nil
}

// DocTaxonomyForVersion returns every DocTaxonomy row at the given version;
// the retrieval engine's scope filter (spec.md §4.2 step 5) matches their
// paths against the requested canonical paths.
func (d *ChunkDAO) DocTaxonomyForVersion(ctx context.Context, version string) ([]models.DocTaxonomy, error) {
	var rows []models.DocTaxonomy
	if err := d.db.WithContext(ctx).Where("version = ?", version).Find(&rows).Error; err != nil {
		return nil, models.NewInternalError("failed to load doc_taxonomy", err)
	}
	return rows, nil
}
