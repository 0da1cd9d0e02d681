// Package retrieval implements C2: the hybrid retrieval engine that fuses
// BM25 and vector similarity over chunks, filtered by taxonomy scope (spec.md
// §4.2).
package retrieval

import "github.com/google/uuid"

type SearchMode string

const (
	SearchModeBM25   SearchMode = "bm25"
	SearchModeVector SearchMode = "vector"
	SearchModeHybrid SearchMode = "hybrid"
)

const (
	DefaultTopK    = 5
	MaxTopK        = 100
	DefaultWBM25   = 0.3
	DefaultWVector = 0.7
)

// Query is the input to Engine.Search (spec.md §4.2).
type Query struct {
	Text             string
	TopK             int
	CanonicalIn      [][]string
	Version          string
	SearchMode       SearchMode
	WeightBM25       float64
	WeightVector     float64
	ConfiguredFetch  int
	IncludeHighlights bool
}

// Citation is the provenance of a hit, resolved from DocTaxonomy.
type Citation struct {
	DocID      uuid.UUID
	Path       []string
	Confidence float64
}

// ScoreBreakdown separates the two component scores for a hit (spec.md §4.2).
type ScoreBreakdown struct {
	BM25 float64
	Vec  float64
}

// Hit is one result row (spec.md §4.2).
type Hit struct {
	ChunkID        uuid.UUID
	DocID          uuid.UUID
	Text           string
	Score          float64
	ScoreBreakdown ScoreBreakdown
	Citations      []Citation
}

// Result is the full output of Engine.Search.
type Result struct {
	Hits       []Hit
	LatencyMs  int64
	Strategy   SearchMode
	Degraded   bool
	DegradedSteps []string
}
