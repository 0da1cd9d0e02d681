package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
)

// lexicalDoc is the document shape indexed by bleve: the chunk's text plus
// enough identity to map a hit back to its chunk/doc pair.
type lexicalDoc struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Text    string `json:"text"`
}

// LexicalHit is one BM25 match, keyed by chunk.
type LexicalHit struct {
	ChunkID uuid.UUID
	DocID   uuid.UUID
	Score   float64
}

// LexicalIndex wraps an in-memory bleve index over chunk text, mirroring the
// teacher's BleveBM25Index trimmed to what this engine needs: no on-disk
// persistence or corruption recovery. The index holds only what Index and
// IndexBatch have added since it was created; it is not loaded from the
// chunk table on process start.
type LexicalIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewLexicalIndex builds an empty in-memory BM25 index over {chunk_id, doc_id, text}.
func NewLexicalIndex() (*LexicalIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical index: %w", err)
	}
	return &LexicalIndex{index: idx}, nil
}

// Index upserts chunks into the index. Safe to call incrementally as new
// chunks arrive.
func (l *LexicalIndex) Index(chunkID, docID uuid.UUID, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.index.Index(chunkID.String(), lexicalDoc{
		ChunkID: chunkID.String(),
		DocID:   docID.String(),
		Text:    text,
	})
}

// IndexBatch upserts many chunks in a single bleve batch.
func (l *LexicalIndex) IndexBatch(docs []lexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ChunkID, d); err != nil {
			return fmt.Errorf("failed to stage chunk %s: %w", d.ChunkID, err)
		}
	}
	return l.index.Batch(batch)
}

// Delete removes chunks from the index (used when a document is reindexed).
func (l *LexicalIndex) Delete(chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id.String())
	}
	return l.index.Batch(batch)
}

// Search runs a BM25 match query over the text field, restricted to
// allowedChunks when non-nil (the taxonomy-scope filter from spec.md §4.2).
func (l *LexicalIndex) Search(ctx context.Context, queryStr string, limit int, allowedChunks map[uuid.UUID]struct{}) ([]LexicalHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	// Over-fetch when a scope filter is active since bleve itself doesn't
	// know about the taxonomy scope; we post-filter below.
	fetchSize := limit
	if allowedChunks != nil {
		fetchSize = limit * 5
		if fetchSize < 100 {
			fetchSize = 100
		}
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = fetchSize
	req.Fields = []string{"doc_id"}

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		chunkID, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		if allowedChunks != nil {
			if _, ok := allowedChunks[chunkID]; !ok {
				continue
			}
		}
		var docID uuid.UUID
		if raw, ok := h.Fields["doc_id"].(string); ok {
			docID, _ = uuid.Parse(raw)
		}
		hits = append(hits, LexicalHit{ChunkID: chunkID, DocID: docID, Score: h.Score})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// DocCount reports how many chunks are currently indexed.
func (l *LexicalIndex) DocCount() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index.DocCount()
}
