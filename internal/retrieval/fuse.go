package retrieval

import (
	"sort"

	"github.com/google/uuid"
)

// fusedChunk tracks the raw and normalized BM25/vector scores for one chunk
// while the two result sets are being merged, mirroring the teacher's
// ScoredChunk accumulator (hybrid_context.go's scoreAllChunks).
type fusedChunk struct {
	chunkID   uuid.UUID
	docID     uuid.UUID
	bm25Raw   float64
	bm25Norm  float64
	hasBM25   bool
	vecRaw    float64 // cosine similarity in [-1, 1]
	vecNorm   float64 // mapped to [0, 1]
	hasVector bool
	final     float64
}

// fuse merges BM25 and vector hit lists by chunk ID, min-max normalizes the
// BM25 scores, maps cosine similarity into [0, 1], and computes the weighted
// fusion score (spec.md §4.2 step 4):
//
//	bm25_norm = (score - min) / (max - min), or 1.0 if all scores are equal
//	            (0 if they are all zero)
//	vec_norm  = (score + 1) / 2
//	final     = wBM25 * bm25_norm + wVector * vec_norm
//
// Ties break final desc -> bm25_norm desc -> doc_id asc.
func fuse(bm25 []LexicalHit, vector []VectorHit, wBM25, wVector float64) []fusedChunk {
	merged := make(map[uuid.UUID]*fusedChunk, len(bm25)+len(vector))

	for _, h := range bm25 {
		merged[h.ChunkID] = &fusedChunk{chunkID: h.ChunkID, docID: h.DocID, bm25Raw: h.Score, hasBM25: true}
	}
	for _, h := range vector {
		if existing, ok := merged[h.ChunkID]; ok {
			existing.vecRaw = h.Score
			existing.hasVector = true
			if existing.docID == uuid.Nil {
				existing.docID = h.DocID
			}
		} else {
			merged[h.ChunkID] = &fusedChunk{chunkID: h.ChunkID, docID: h.DocID, vecRaw: h.Score, hasVector: true}
		}
	}

	bm25Min, bm25Max := minMaxBM25(bm25)
	for _, fc := range merged {
		// A chunk missing from one side uses 0 for that side's normalized
		// score rather than normalizing its zero-value default, which would
		// otherwise land below 0 whenever the real scores on that side are
		// all positive (spec.md §4.2 step 4).
		if fc.hasBM25 {
			fc.bm25Norm = normalizeBM25(fc.bm25Raw, bm25Min, bm25Max)
		}
		if fc.hasVector {
			fc.vecNorm = (fc.vecRaw + 1) / 2
		}
		fc.final = wBM25*fc.bm25Norm + wVector*fc.vecNorm
	}

	result := make([]fusedChunk, 0, len(merged))
	for _, fc := range merged {
		result = append(result, *fc)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].final != result[j].final {
			return result[i].final > result[j].final
		}
		if result[i].bm25Norm != result[j].bm25Norm {
			return result[i].bm25Norm > result[j].bm25Norm
		}
		return result[i].docID.String() < result[j].docID.String()
	})

	return result
}

func minMaxBM25(hits []LexicalHit) (min, max float64) {
	if len(hits) == 0 {
		return 0, 0
	}
	min, max = hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	return min, max
}

func normalizeBM25(score, min, max float64) float64 {
	if max == min {
		if max == 0 {
			return 0
		}
		return 1.0
	}
	return (score - min) / (max - min)
}
