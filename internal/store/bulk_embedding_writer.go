package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tas-rag-core/models"
)

// BulkEmbeddingWriter loads a document's chunk embeddings via Postgres's COPY
// protocol instead of row-by-row gorm Exec calls. ChunkDAO.UpsertEmbedding is
// right for the online path (one chunk re-embedded at a time), but initial
// corpus ingestion writes thousands of rows per document, where row-by-row
// round trips dominate; pgx's CopyFrom pushes them as a single stream.
type BulkEmbeddingWriter struct {
	pool *pgxpool.Pool
}

// NewBulkEmbeddingWriter opens a dedicated pgx pool against dsn. It is kept
// separate from the gorm *Store connection since pgx.CopyFrom needs the raw
// driver connection, not an ORM handle.
func NewBulkEmbeddingWriter(ctx context.Context, dsn string) (*BulkEmbeddingWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, models.NewConfigError("failed to open bulk embedding writer pool", err)
	}
	return &BulkEmbeddingWriter{pool: pool}, nil
}

func (w *BulkEmbeddingWriter) Close() {
	w.pool.Close()
}

// bulkEmbeddingRow pairs a chunk ID with its freshly computed vector for one
// CopyFrom batch.
type bulkEmbeddingRow struct {
	ChunkID uuid.UUID
	Model   string
	Vec     []float32
}

// WriteBatch streams rows into a staging table and folds them into the
// embeddings table with a single upsert, so a partially-failed COPY never
// leaves half a document's chunks embedded and half not.
func (w *BulkEmbeddingWriter) WriteBatch(ctx context.Context, docID uuid.UUID, chunkIDs []uuid.UUID, modelName string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return models.NewValidationError("chunk IDs and vectors must be the same length")
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	rows := make([]bulkEmbeddingRow, len(chunkIDs))
	for i := range chunkIDs {
		rows[i] = bulkEmbeddingRow{ChunkID: chunkIDs[i], Model: modelName, Vec: vectors[i]}
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return models.NewInternalError("failed to begin bulk embedding transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE embeddings_staging (
		chunk_id uuid, model_name text, vec_literal text
	) ON COMMIT DROP`); err != nil {
		return models.NewInternalError("failed to create staging table", err)
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"embeddings_staging"},
		[]string{"chunk_id", "model_name", "vec_literal"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].ChunkID, rows[i].Model, vectorLiteral(rows[i].Vec)}, nil
		}),
	)
	if err != nil {
		return models.NewInternalError("bulk embedding copy failed", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO embeddings (chunk_id, model_name, vec)
		SELECT chunk_id, model_name, vec_literal::vector FROM embeddings_staging
		ON CONFLICT (chunk_id) DO UPDATE SET model_name = EXCLUDED.model_name, vec = EXCLUDED.vec
	`)
	if err != nil {
		return models.NewInternalError("bulk embedding upsert failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.NewInternalError("failed to commit bulk embedding batch", err)
	}
	return nil
}
