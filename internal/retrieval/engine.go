package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tas-rag-core/internal/dagcache"
	"github.com/tas-rag-core/models"
)

// Embedder is the subset of C1's Service the engine needs to embed a query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TaxonomyResolver resolves {doc_id -> classification paths} for a version,
// used to build the taxonomy-scope chunk filter (spec.md §4.2 step 5).
type TaxonomyResolver interface {
	DocTaxonomyForVersion(ctx context.Context, version string) ([]models.DocTaxonomy, error)
}

// ChunkLocator maps chunk IDs to their owning document, used to apply the
// taxonomy filter to chunks that don't come back with a doc_id already
// attached, and to hydrate a hit's text before it reaches the caller.
type ChunkLocator interface {
	AllChunks(ctx context.Context) ([]models.Chunk, error)
	ChunksByIDs(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID]models.Chunk, error)
}

// Engine implements C2: the hybrid retrieval engine (spec.md §4.2).
type Engine struct {
	lexical  *LexicalIndex
	vector   VectorIndex
	embedder Embedder
	dag      *dagcache.Cache
	taxo     TaxonomyResolver
	chunks   ChunkLocator
	rerank   Reranker
}

func NewEngine(lexical *LexicalIndex, vector VectorIndex, embedder Embedder, dag *dagcache.Cache, taxo TaxonomyResolver, chunks ChunkLocator, rerank Reranker) *Engine {
	if rerank == nil {
		rerank = NewNoopReranker()
	}
	return &Engine{lexical: lexical, vector: vector, embedder: embedder, dag: dag, taxo: taxo, chunks: chunks, rerank: rerank}
}

// Search runs the algorithm from spec.md §4.2.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	start := time.Now()

	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	fetch := topK
	if q.ConfiguredFetch > fetch {
		fetch = q.ConfiguredFetch
	}

	wBM25, wVector := q.WeightBM25, q.WeightVector
	if wBM25 == 0 && wVector == 0 {
		wBM25, wVector = DefaultWBM25, DefaultWVector
	}

	mode := q.SearchMode
	if mode == "" {
		mode = SearchModeHybrid
	}

	var allowedChunks map[uuid.UUID]struct{}
	var citationsByDoc map[uuid.UUID][]Citation
	if len(q.CanonicalIn) > 0 {
		var err error
		allowedChunks, citationsByDoc, err = e.scopeFilter(ctx, q.Version, q.CanonicalIn)
		if err != nil {
			return Result{}, err
		}
	}

	var bm25Hits []LexicalHit
	var vecHits []VectorHit
	var degraded bool
	var degradedSteps []string

	if mode == SearchModeBM25 || mode == SearchModeHybrid {
		hits, err := e.lexical.Search(ctx, q.Text, fetch, allowedChunks)
		if err != nil {
			if mode == SearchModeBM25 {
				return Result{}, err
			}
			degraded = true
			degradedSteps = append(degradedSteps, "lexical")
		} else {
			bm25Hits = hits
		}
	}

	if mode == SearchModeVector || mode == SearchModeHybrid {
		queryVec, err := e.embedder.Embed(ctx, q.Text)
		if err != nil {
			if mode == SearchModeVector {
				return Result{}, err
			}
			degraded = true
			degradedSteps = append(degradedSteps, "vector")
		} else {
			hits, err := e.vector.Search(ctx, queryVec, fetch, allowedChunks)
			if err != nil {
				if mode == SearchModeVector {
					return Result{}, err
				}
				degraded = true
				degradedSteps = append(degradedSteps, "vector")
			} else {
				vecHits = hits
			}
		}
	}

	switch mode {
	case SearchModeBM25:
		wBM25, wVector = 1.0, 0.0
	case SearchModeVector:
		wBM25, wVector = 0.0, 1.0
	}

	fused := fuse(bm25Hits, vecHits, wBM25, wVector)
	if len(fused) > fetch {
		fused = fused[:fetch]
	}

	hits := make([]Hit, 0, len(fused))
	for _, fc := range fused {
		hits = append(hits, Hit{
			ChunkID:        fc.chunkID,
			DocID:          fc.docID,
			Score:          fc.final,
			ScoreBreakdown: ScoreBreakdown{BM25: fc.bm25Norm, Vec: fc.vecNorm},
			Citations:      citationsByDoc[fc.docID],
		})
	}

	hits, err := e.rerank.Rerank(ctx, q.Text, hits)
	if err != nil {
		degraded = true
		degradedSteps = append(degradedSteps, "rerank")
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}

	if err := e.hydrateText(ctx, hits); err != nil {
		degraded = true
		degradedSteps = append(degradedSteps, "hydrate")
	}

	return Result{
		Hits:          hits,
		LatencyMs:     time.Since(start).Milliseconds(),
		Strategy:      mode,
		Degraded:      degraded,
		DegradedSteps: degradedSteps,
	}, nil
}

// hydrateText fills in each hit's Text from the chunk store. Both retrieval
// legs only round-trip IDs and a score, so the fused hits have no text until
// this runs — without it the evidence handed to compose (spec.md §4.4) is
// empty.
func (e *Engine) hydrateText(ctx context.Context, hits []Hit) error {
	if len(hits) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := e.chunks.ChunksByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range hits {
		if c, ok := chunks[hits[i].ChunkID]; ok {
			hits[i].Text = c.Text
		}
	}
	return nil
}

// scopeFilter resolves canonical_in + version into the set of chunk IDs whose
// document has a qualifying DocTaxonomy classification (spec.md §4.2 step 5),
// plus the citation each qualifying document earns.
func (e *Engine) scopeFilter(ctx context.Context, version string, canonicalIn [][]string) (map[uuid.UUID]struct{}, map[uuid.UUID][]Citation, error) {
	_, err := e.dag.Get(ctx, version)
	if err != nil {
		return nil, nil, err
	}

	rows, err := e.taxo.DocTaxonomyForVersion(ctx, version)
	if err != nil {
		return nil, nil, err
	}

	qualifyingDocs := make(map[uuid.UUID][]Citation)
	for _, row := range rows {
		for _, target := range canonicalIn {
			if models.PathEquals(row.Path, target) || dagcache.IsDescendantOf(row.Path, target) {
				qualifyingDocs[row.DocID] = append(qualifyingDocs[row.DocID], Citation{
					DocID:      row.DocID,
					Path:       row.Path,
					Confidence: row.Confidence,
				})
				break
			}
		}
	}

	chunks, err := e.chunks.AllChunks(ctx)
	if err != nil {
		return nil, nil, err
	}
	allowed := make(map[uuid.UUID]struct{})
	for _, c := range chunks {
		if _, ok := qualifyingDocs[c.DocID]; ok {
			allowed[c.ChunkID] = struct{}{}
		}
	}

	return allowed, qualifyingDocs, nil
}
